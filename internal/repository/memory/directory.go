package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-core/internal/model"
	"github.com/jwalitptl/scheduling-core/internal/repository"
)

// Directory serves users, patients, pharmacies, lab results and
// prescriptions from memory. Each accessor returns a typed view implementing
// the matching repository interface.
type Directory struct {
	mu            sync.RWMutex
	users         map[uuid.UUID]model.User
	patients      map[uuid.UUID]model.Patient
	pharmacies    map[uuid.UUID]model.Pharmacy
	labResults    map[uuid.UUID]model.LabResult
	prescriptions map[uuid.UUID]model.Prescription
	// lookups counts Get calls per entity kind.
	lookups map[string]int
	failGet map[string]error
}

func NewDirectory() *Directory {
	return &Directory{
		users:         make(map[uuid.UUID]model.User),
		patients:      make(map[uuid.UUID]model.Patient),
		pharmacies:    make(map[uuid.UUID]model.Pharmacy),
		labResults:    make(map[uuid.UUID]model.LabResult),
		prescriptions: make(map[uuid.UUID]model.Prescription),
		lookups:       make(map[string]int),
		failGet:       make(map[string]error),
	}
}

func (d *Directory) PutUser(u model.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *Directory) PutPatient(p model.Patient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patients[p.ID] = p
}

func (d *Directory) PutPharmacy(p model.Pharmacy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pharmacies[p.ID] = p
}

func (d *Directory) PutLabResult(r model.LabResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.labResults[r.ID] = r
}

func (d *Directory) PutPrescription(p model.Prescription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prescriptions[p.ID] = p
}

// Lookups returns how many Get calls hit the given kind ("user", "patient", ...).
func (d *Directory) Lookups(kind string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lookups[kind]
}

// FailNextGet makes the next Get of kind return err.
func (d *Directory) FailNextGet(kind string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failGet[kind] = err
}

func (d *Directory) Users() repository.UserRepository                 { return userView{d} }
func (d *Directory) Patients() repository.PatientRepository           { return patientView{d} }
func (d *Directory) Pharmacies() repository.PharmacyRepository        { return pharmacyView{d} }
func (d *Directory) LabResults() repository.LabResultRepository       { return labResultView{d} }
func (d *Directory) Prescriptions() repository.PrescriptionRepository { return prescriptionView{d} }

func (d *Directory) begin(kind string) error {
	d.lookups[kind]++
	if err, ok := d.failGet[kind]; ok {
		delete(d.failGet, kind)
		return err
	}
	return nil
}

type userView struct{ d *Directory }

func (v userView) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if err := v.d.begin("user"); err != nil {
		return nil, err
	}
	u, ok := v.d.users[id]
	if !ok {
		return nil, fmt.Errorf("failed to get user: %w", repository.ErrNotFound)
	}
	return &u, nil
}

type patientView struct{ d *Directory }

func (v patientView) Get(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if err := v.d.begin("patient"); err != nil {
		return nil, err
	}
	p, ok := v.d.patients[id]
	if !ok {
		return nil, fmt.Errorf("failed to get patient: %w", repository.ErrNotFound)
	}
	return &p, nil
}

type pharmacyView struct{ d *Directory }

func (v pharmacyView) Get(_ context.Context, id uuid.UUID) (*model.Pharmacy, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if err := v.d.begin("pharmacy"); err != nil {
		return nil, err
	}
	p, ok := v.d.pharmacies[id]
	if !ok {
		return nil, fmt.Errorf("failed to get pharmacy: %w", repository.ErrNotFound)
	}
	return &p, nil
}

type labResultView struct{ d *Directory }

func (v labResultView) Get(_ context.Context, id uuid.UUID) (*model.LabResult, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if err := v.d.begin("lab_result"); err != nil {
		return nil, err
	}
	r, ok := v.d.labResults[id]
	if !ok {
		return nil, fmt.Errorf("failed to get lab result: %w", repository.ErrNotFound)
	}
	return &r, nil
}

func (v labResultView) MarkNotified(_ context.Context, id uuid.UUID, at time.Time) error {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	r, ok := v.d.labResults[id]
	if !ok || r.Notified {
		return fmt.Errorf("failed to mark lab result notified: %w", repository.ErrStaleState)
	}
	r.Notified = true
	r.NotifiedAt = &at
	r.UpdatedAt = at
	v.d.labResults[id] = r
	return nil
}

type prescriptionView struct{ d *Directory }

func (v prescriptionView) Get(_ context.Context, id uuid.UUID) (*model.Prescription, error) {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	if err := v.d.begin("prescription"); err != nil {
		return nil, err
	}
	p, ok := v.d.prescriptions[id]
	if !ok {
		return nil, fmt.Errorf("failed to get prescription: %w", repository.ErrNotFound)
	}
	return &p, nil
}

func (v prescriptionView) MarkNotified(_ context.Context, id uuid.UUID, status model.PrescriptionStatus) error {
	v.d.mu.Lock()
	defer v.d.mu.Unlock()
	p, ok := v.d.prescriptions[id]
	if !ok || (p.NotifiedStatus != nil && *p.NotifiedStatus == status) {
		return fmt.Errorf("failed to mark prescription notified: %w", repository.ErrStaleState)
	}
	p.NotifiedStatus = &status
	v.d.prescriptions[id] = p
	return nil
}

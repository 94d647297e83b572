package student

import (
	"context"
	"sort"
	"strings"
	"sync"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
)

const (
	DefaultPassingThreshold = 6.0
	// ConfirmDelete must be typed (in any case) to confirm a deletion.
	ConfirmDelete = "YES"
)

// Store loads and saves the whole ledger.
// Save replaces the persisted ledger; implementations must not keep a reference to l.
type Store interface {
	Load(ctx context.Context) (*Ledger, error)
	Save(ctx context.Context, l *Ledger) error
}

type Options struct {
	// PassingThreshold defaults to DefaultPassingThreshold when zero; configuration rejects zero.
	PassingThreshold float64
	Allocator        *Allocator
	Logger           core.Logger
}

type Service struct {
	mu         sync.RWMutex
	store      Store
	ledger     *Ledger
	dirty      bool
	threshold  float64
	allocator  *Allocator
	logger     core.Logger
	validate   *validator.Validate
	translator ut.Translator
}

// NewService loads the ledger from store and serves every read from memory afterwards.
func NewService(ctx context.Context, store Store, opts Options) (*Service, error) {
	if opts.PassingThreshold <= 0 {
		opts.PassingThreshold = DefaultPassingThreshold
	}
	if opts.Allocator == nil {
		opts.Allocator = NewAllocator()
	}
	if opts.Logger == nil {
		opts.Logger = core.NopLogger{}
	}

	ledger, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if ledger == nil {
		ledger = new(Ledger)
	}
	if err := ledger.checkUnique(); err != nil {
		return nil, &LoadError{Source: "ledger", Err: err}
	}

	validate, translator := core.NewValidator()
	svc := &Service{
		store:      store,
		ledger:     ledger,
		threshold:  opts.PassingThreshold,
		allocator:  opts.Allocator,
		logger:     opts.Logger,
		validate:   validate,
		translator: translator,
	}
	svc.logger.Info("ledger loaded", map[string]interface{}{"students": len(ledger.Students)})
	return svc, nil
}

func (svc *Service) Threshold() float64 { return svc.threshold }

// Dirty reports whether in-memory changes failed to reach the store.
func (svc *Service) Dirty() bool {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.dirty
}

// Flush retries saving the ledger if a previous save failed.
func (svc *Service) Flush(ctx context.Context) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if !svc.dirty {
		return nil
	}
	return svc.persist(ctx, "flush")
}

func (svc *Service) FindByName(name string) (Student, error) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	idx := svc.ledger.indexOf(name)
	if idx < 0 {
		return Student{}, ErrNotFound
	}
	return svc.view(svc.ledger.Students[idx]), nil
}

// FindByAccountNumber is the student-side lookup. It is not an authentication.
func (svc *Service) FindByAccountNumber(acct string) (Student, error) {
	acct = core.CleanString(acct)
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	if acct != "" {
		for _, s := range svc.ledger.Students {
			if s.AccountNumber == acct {
				return svc.view(s), nil
			}
		}
	}
	return Student{}, ErrNotFound
}

// ListAll returns every student ordered by name.
func (svc *Service) ListAll() []Student {
	svc.mu.RLock()
	students := svc.views(svc.ledger.Students)
	svc.mu.RUnlock()
	sort.SliceStable(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	return students
}

func (svc *Service) StudentsWithoutEmail() []Student {
	var out []Student
	for _, s := range svc.ListAll() {
		if !s.HasEmail() {
			out = append(out, s)
		}
	}
	return out
}

func (svc *Service) Add(ctx context.Context, ns NewStudent) (Student, error) {
	ns.clean()
	if err := svc.validate.Struct(ns); err != nil {
		cause := ErrInvalidStudent
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.StructField() == "Grade" {
					cause = ErrInvalidGrade
					break
				}
			}
		}
		return Student{}, core.TranslateValidationErrors(err, svc.translator, cause)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.ledger.indexOf(ns.Name) >= 0 {
		return Student{}, core.NewValidationError(ErrDuplicateName, core.FieldError{Field: "name", Error: ErrDuplicateName.Error()})
	}

	issued := svc.ledger.issuedAccounts()
	acct := ns.AccountNumber
	if acct != "" {
		if _, taken := issued[acct]; taken {
			return Student{}, core.NewValidationError(ErrDuplicateAccount, core.FieldError{Field: "account_number", Error: ErrDuplicateAccount.Error()})
		}
	} else {
		var err error
		if acct, err = svc.allocator.Allocate(issued); err != nil {
			return Student{}, err
		}
	}

	std := Student{Name: ns.Name, Grade: ns.Grade, AccountNumber: acct, Email: ns.Email}
	svc.ledger.Students = append(svc.ledger.Students, std)
	svc.logger.Info("student added", std)
	return svc.view(std), svc.persist(ctx, "add")
}

func (svc *Service) UpdateGrade(ctx context.Context, name string, grade float64) (Student, error) {
	if err := svc.validate.Var(grade, "gte=0,lte=10"); err != nil {
		return Student{}, core.NewValidationError(ErrInvalidGrade, core.FieldError{Field: "grade", Error: ErrInvalidGrade.Error()})
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	idx := svc.ledger.indexOf(name)
	if idx < 0 {
		return Student{}, ErrNotFound
	}
	svc.ledger.Students[idx].Grade = grade
	std := svc.ledger.Students[idx]
	svc.logger.Info("grade updated", std)
	return svc.view(std), svc.persist(ctx, "update grade")
}

// Delete removes a student once confirmation equals ConfirmDelete. Its account number is retired.
func (svc *Service) Delete(ctx context.Context, name, confirmation string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	idx := svc.ledger.indexOf(name)
	if idx < 0 {
		return ErrNotFound
	}
	if !strings.EqualFold(strings.TrimSpace(confirmation), ConfirmDelete) {
		return ErrNotConfirmed
	}

	std := svc.ledger.Students[idx]
	svc.ledger.Students = append(svc.ledger.Students[:idx:idx], svc.ledger.Students[idx+1:]...)
	if std.AccountNumber != "" {
		svc.ledger.Retired = append(svc.ledger.Retired, std.AccountNumber)
	}
	svc.logger.Warn("student deleted", std)
	return svc.persist(ctx, "delete")
}

// AssignMissingAccounts allocates an account number to every student lacking one.
func (svc *Service) AssignMissingAccounts(ctx context.Context) (int, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	issued := svc.ledger.issuedAccounts()
	var n int
	for i := range svc.ledger.Students {
		if svc.ledger.Students[i].AccountNumber != "" {
			continue
		}
		acct, err := svc.allocator.Allocate(issued)
		if err != nil {
			if n > 0 {
				if perr := svc.persist(ctx, "assign accounts"); perr != nil {
					svc.logger.Error("saving partial account assignment", perr)
				}
			}
			return n, err
		}
		issued[acct] = struct{}{}
		svc.ledger.Students[i].AccountNumber = acct
		n++
	}
	if n == 0 {
		return 0, nil
	}
	svc.logger.Info("account numbers assigned", map[string]interface{}{"count": n})
	return n, svc.persist(ctx, "assign accounts")
}

func (svc *Service) Statistics() (Statistics, error) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return ComputeStatistics(svc.ledger.Students, svc.threshold)
}

// persist must be called with svc.mu held for writing.
func (svc *Service) persist(ctx context.Context, op string) error {
	if err := svc.store.Save(ctx, svc.ledger.Clone()); err != nil {
		svc.dirty = true
		svc.logger.Error("saving ledger", err, map[string]interface{}{"op": op})
		return &PersistError{Op: op, Err: err}
	}
	svc.dirty = false
	return nil
}

func (svc *Service) view(s Student) Student {
	s.Status = StatusFor(s.Grade, svc.threshold)
	return s
}

func (svc *Service) views(students []Student) []Student {
	out := make([]Student, len(students))
	for i, s := range students {
		out[i] = svc.view(s)
	}
	return out
}

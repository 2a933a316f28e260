package staff

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/assignment"
	"github.com/hackgods/homeservice-dispatch/internal/cache"
)

type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Staff, error)
	Create(ctx context.Context, s *Staff) error
	LockMany(ctx context.Context, ids []uuid.UUID) ([]Staff, error)
	ListAvailable(ctx context.Context, role Role, date time.Time, specialization string) ([]Staff, error)
	Deactivate(ctx context.Context, ids ...uuid.UUID) (int, error)
}

// Candidates maps drivers onto assignment candidates.
func Candidates(drivers []Staff) []assignment.Candidate {
	out := make([]assignment.Candidate, 0, len(drivers))
	for _, d := range drivers {
		out = append(out, assignment.Candidate{
			StaffID:         d.ID,
			Name:            d.Name,
			LastAvailableAt: d.LastAvailableAt,
			Busy:            d.Busy,
		})
	}
	return out
}

// Directory answers "who of role R can work on date D".
type Directory struct {
	repo   Repository
	cache  *cache.Cache
	logger *zap.Logger
}

func NewDirectory(repo Repository, c *cache.Cache, logger *zap.Logger) *Directory {
	return &Directory{repo: repo, cache: c, logger: logger}
}

func (d *Directory) Get(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return d.repo.Get(ctx, id)
}

func (d *Directory) Create(ctx context.Context, s Staff) (*Staff, error) {
	if !s.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, s.Role)
	}
	s.Name = strings.TrimSpace(s.Name)
	if err := d.repo.Create(ctx, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Available lists active members of role with availability on date. Drivers
// come back in FIFO order with free drivers ahead of busy ones; everyone
// else is sorted by name.
func (d *Directory) Available(ctx context.Context, role Role, date time.Time, specialization string) ([]Staff, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	key := cache.AvailabilityKey(date, string(role), specialization)
	return cache.Fetch(ctx, d.cache, key, d.cache.TTLFor(date), func(ctx context.Context) ([]Staff, error) {
		members, err := d.repo.ListAvailable(ctx, role, date, specialization)
		if err != nil {
			return nil, err
		}
		if role == RoleDriver {
			return fifoOrder(members), nil
		}
		sort.SliceStable(members, func(i, j int) bool {
			if members[i].Busy != members[j].Busy {
				return !members[i].Busy
			}
			return members[i].Name < members[j].Name
		})
		return members, nil
	})
}

func fifoOrder(drivers []Staff) []Staff {
	byID := make(map[uuid.UUID]Staff, len(drivers))
	for _, s := range drivers {
		byID[s.ID] = s
	}
	var free, busy []assignment.Candidate
	for _, c := range Candidates(drivers) {
		if c.Busy {
			busy = append(busy, c)
		} else {
			free = append(free, c)
		}
	}

	out := make([]Staff, 0, len(drivers))
	for _, c := range append(assignment.Ordered(free), assignment.Ordered(busy)...) {
		out = append(out, byID[c.StaffID])
	}
	return out
}

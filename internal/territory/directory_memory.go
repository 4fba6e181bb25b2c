package territory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	id "agora/pkg/domain"
	"agora/pkg/platform/sentinel"
)

// maxDepth guards against cycles in malformed seed data.
const maxDepth = 64

// InMemoryDirectory resolves territories from parent links held in memory.
// Parents and routes are derived on Add and cached.
type InMemoryDirectory struct {
	mu          sync.RWMutex
	territories map[id.TerritoryID]*Territory
	resolved    map[id.TerritoryID]*Territory
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		territories: make(map[id.TerritoryID]*Territory),
		resolved:    make(map[id.TerritoryID]*Territory),
	}
}

// Add registers territories. Parents may be added in any order.
func (d *InMemoryDirectory) Add(territories ...Territory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range territories {
		d.territories[t.ID] = &t
	}
	d.resolved = make(map[id.TerritoryID]*Territory)
}

// LoadSeed reads a JSON array of territories from path.
func (d *InMemoryDirectory) LoadSeed(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read territory seed: %w", err)
	}
	var territories []Territory
	if err := json.Unmarshal(data, &territories); err != nil {
		return fmt.Errorf("parse territory seed: %w", err)
	}
	d.Add(territories...)
	return nil
}

func (d *InMemoryDirectory) Resolve(_ context.Context, territoryID id.TerritoryID) (*Territory, error) {
	d.mu.RLock()
	if t, ok := d.resolved[territoryID]; ok {
		d.mu.RUnlock()
		return clone(t), nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.resolveLocked(territoryID)
	if err != nil {
		return nil, err
	}
	return clone(t), nil
}

func (d *InMemoryDirectory) GetTerritoriesBulk(ctx context.Context, ids []id.TerritoryID) (map[id.TerritoryID]*Territory, error) {
	out := make(map[id.TerritoryID]*Territory, len(ids))
	for _, territoryID := range ids {
		t, err := d.Resolve(ctx, territoryID)
		if err != nil {
			return nil, err
		}
		out[territoryID] = t
	}
	return out, nil
}

func (d *InMemoryDirectory) resolveLocked(territoryID id.TerritoryID) (*Territory, error) {
	if t, ok := d.resolved[territoryID]; ok {
		return t, nil
	}
	base, ok := d.territories[territoryID]
	if !ok {
		return nil, fmt.Errorf("territory %s: %w", territoryID, sentinel.ErrNotFound)
	}

	t := *base
	t.Parents = nil
	t.RouteTo = map[id.TerritoryType][]id.TerritoryID{t.Type: {t.ID}}
	chain := []id.TerritoryID{t.ID}

	parentID := t.ParentID
	for depth := 0; parentID != ""; depth++ {
		if depth >= maxDepth {
			return nil, fmt.Errorf("territory %s: parent chain too deep", territoryID)
		}
		parent, ok := d.territories[parentID]
		if !ok {
			return nil, fmt.Errorf("territory %s: parent %s: %w", territoryID, parentID, sentinel.ErrNotFound)
		}
		t.Parents = append(t.Parents, parent.ID)
		chain = append(chain, parent.ID)
		if _, seen := t.RouteTo[parent.Type]; !seen {
			t.RouteTo[parent.Type] = append([]id.TerritoryID(nil), chain...)
		}
		parentID = parent.ParentID
	}

	d.resolved[territoryID] = &t
	return &t, nil
}

func clone(t *Territory) *Territory {
	out := *t
	out.Parents = append([]id.TerritoryID(nil), t.Parents...)
	out.RouteTo = make(map[id.TerritoryType][]id.TerritoryID, len(t.RouteTo))
	for k, v := range t.RouteTo {
		out.RouteTo[k] = append([]id.TerritoryID(nil), v...)
	}
	return &out
}

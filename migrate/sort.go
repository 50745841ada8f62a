package migrate

import (
	"fmt"
	"strings"

	"github.com/burugo/migrant"
	"github.com/burugo/migrant/model"
)

// sortTasks orders tasks so every task follows the tasks it depends on:
//
//   - createModel(M) follows createModel of each belongsTo target created in the same migration;
//   - destroyModel(M) follows every task on a model referenced by a removed hasOne/hasMany/through association;
//   - editModel(M) follows createModel of each added belongsTo target created in the same migration;
//   - execute tasks follow all structural tasks.
//
// Among ready tasks the earliest declared goes first. A dependency cycle is ErrUnsortable.
func sortTasks(tasks []*Task) ([]*Task, error) {
	pending := make([]*Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.empty() {
			pending = append(pending, t)
		}
	}
	deps := dependencies(pending)

	placed := make(map[*Task]bool, len(pending))
	out := make([]*Task, 0, len(pending))
	for len(pending) > 0 {
		next := -1
		for i, t := range pending {
			if ready(deps[t], placed) {
				next = i
				break
			}
		}
		if next < 0 {
			stuck := make([]string, len(pending))
			for i, t := range pending {
				stuck[i] = t.String()
			}
			return nil, fmt.Errorf("%w: %s", migrant.ErrUnsortable, strings.Join(stuck, ", "))
		}
		t := pending[next]
		pending = append(pending[:next], pending[next+1:]...)
		placed[t] = true
		out = append(out, t)
	}
	return out, nil
}

func ready(deps []*Task, placed map[*Task]bool) bool {
	for _, d := range deps {
		if !placed[d] {
			return false
		}
	}
	return true
}

func dependencies(tasks []*Task) map[*Task][]*Task {
	creates := make(map[string]*Task)
	byModel := make(map[string][]*Task)
	var ddl []*Task
	for _, t := range tasks {
		if t.Kind == CreateModel {
			creates[t.ModelName()] = t
		}
		if t.Kind.IsDDL() {
			byModel[t.ModelName()] = append(byModel[t.ModelName()], t)
			ddl = append(ddl, t)
		}
	}

	deps := make(map[*Task][]*Task, len(tasks))
	dependOn := func(t, d *Task) {
		if d != nil && d != t {
			deps[t] = append(deps[t], d)
		}
	}
	for _, t := range tasks {
		switch t.Kind {
		case CreateModel:
			for _, p := range t.Model.AllProperties() {
				if p.Kind() == model.KindBelongsTo {
					dependOn(t, creates[p.Target().Name()])
				}
			}
		case DestroyModel:
			for _, p := range t.Removed {
				if !p.IsAssociation() || p.Kind() == model.KindBelongsTo {
					continue
				}
				for _, name := range []string{p.Target().Name(), p.ThroughRef().Name()} {
					if name == "" || name == t.ModelName() {
						continue
					}
					for _, o := range byModel[name] {
						dependOn(t, o)
					}
				}
			}
		case EditModel:
			for _, p := range t.Added {
				if p.Kind() == model.KindBelongsTo {
					dependOn(t, creates[p.Target().Name()])
				}
			}
		case Execute:
			for _, d := range ddl {
				dependOn(t, d)
			}
		}
	}
	return deps
}

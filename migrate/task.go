package migrate

import (
	"context"
	"fmt"
	"sync"

	"github.com/burugo/migrant"
	"github.com/burugo/migrant/model"
)

// TaskKind identifies what a Task does.
type TaskKind int

const (
	CreateModel TaskKind = iota
	DestroyModel
	EditModel
	Execute
)

func (k TaskKind) String() string {
	switch k {
	case CreateModel:
		return "createModel"
	case DestroyModel:
		return "destroyModel"
	case EditModel:
		return "editModel"
	case Execute:
		return "execute"
	}
	return fmt.Sprintf("TaskKind(%d)", int(k))
}

// IsDDL reports whether the kind changes the schema structure.
func (k TaskKind) IsDDL() bool { return k != Execute }

// Task is one deferred unit of work recorded by a migration step.
type Task struct {
	Kind TaskKind
	// Model is a snapshot of the target model taken when the task was last
	// updated. It is nil for Execute tasks.
	Model   *model.Model
	Label   string // Execute tasks: "target.method"
	Added   []*model.Property
	Removed []*model.Property
	Changed []model.Change

	seq  int
	fn   func(ctx context.Context, exec migrant.Execer) error
	once sync.Once
	done chan struct{}
	err  error
}

func newTask(kind TaskKind, m *model.Model, seq int) *Task {
	t := &Task{Kind: kind, seq: seq, done: make(chan struct{})}
	if m != nil {
		t.Model = m.Snapshot()
	}
	return t
}

// ModelName returns the name of the target model, or "" for Execute tasks.
func (t *Task) ModelName() string {
	if t.Model == nil {
		return ""
	}
	return t.Model.Name()
}

func (t *Task) String() string {
	if t.Kind == Execute {
		return fmt.Sprintf("%s(%s)", t.Kind, t.Label)
	}
	return fmt.Sprintf("%s(%s)", t.Kind, t.ModelName())
}

// Done is closed once the task has run, or once the migration holding it gave up.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task's result after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

func (t *Task) settle(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// run executes the task against exec and settles it.
func (t *Task) run(ctx context.Context, exec migrant.Execer) error {
	var err error
	switch t.Kind {
	case CreateModel:
		err = t.Model.Setup(ctx, exec)
	case DestroyModel:
		err = t.Model.Destroy(ctx, exec)
	case EditModel:
		err = t.Model.Edit(ctx, exec, t.Added, t.Removed, t.Changed)
	case Execute:
		err = t.fn(ctx, exec)
	}
	if err != nil {
		err = fmt.Errorf("%s: %w", t, err)
	}
	t.settle(err)
	return err
}

func indexOf(props []*model.Property, name string) int {
	for i, p := range props {
		if p.Name() == name {
			return i
		}
	}
	return -1
}

func changeIndex(changes []model.Change, name string) int {
	for i, c := range changes {
		if c.To.Name() == name {
			return i
		}
	}
	return -1
}

// add pushes a new or changed property onto an edit task.
func (t *Task) add(p, existing *model.Property) {
	name := p.Name()
	if existing == nil {
		if i := indexOf(t.Removed, name); i >= 0 && !model.MovesColumn(t.Removed[i], p) {
			from := t.Removed[i]
			t.Removed = append(t.Removed[:i], t.Removed[i+1:]...)
			if !from.Equal(p) {
				t.Changed = append(t.Changed, model.Change{From: from, To: p})
			}
			return
		}
		t.Added = append(t.Added, p)
		return
	}
	if i := indexOf(t.Added, name); i >= 0 {
		t.Added[i] = p
		return
	}
	if i := changeIndex(t.Changed, name); i >= 0 {
		t.Changed[i].To = p
		if t.Changed[i].From.Equal(p) {
			t.Changed = append(t.Changed[:i], t.Changed[i+1:]...)
		}
		return
	}
	t.Changed = append(t.Changed, model.Change{From: existing, To: p})
}

// remove pushes a removed property onto an edit task.
func (t *Task) remove(p *model.Property) {
	name := p.Name()
	if i := indexOf(t.Added, name); i >= 0 {
		t.Added = append(t.Added[:i], t.Added[i+1:]...)
		return
	}
	if i := changeIndex(t.Changed, name); i >= 0 {
		p = t.Changed[i].From
		t.Changed = append(t.Changed[:i], t.Changed[i+1:]...)
	}
	t.Removed = append(t.Removed, p)
}

func (t *Task) empty() bool {
	return t.Kind == EditModel && len(t.Added)+len(t.Removed)+len(t.Changed) == 0
}

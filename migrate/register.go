package migrate

import (
	"sort"
	"sync"
)

// registration is a migration compiled into the binary.
type registration struct {
	version int64
	name    string
	up      StepFunc
	down    StepFunc
}

var compiled = struct {
	sync.Mutex
	list []registration
}{}

// Register adds a compiled-in migration. It is meant to be called from init
// functions of generated Go migration files.
func Register(version int64, name string, up, down StepFunc) {
	compiled.Lock()
	defer compiled.Unlock()
	compiled.list = append(compiled.list, registration{version: version, name: name, up: up, down: down})
}

// LoadRegistered adds every migration passed to Register to the chain.
func (r *Migrations) LoadRegistered() error {
	compiled.Lock()
	list := append([]registration(nil), compiled.list...)
	compiled.Unlock()

	sort.SliceStable(list, func(i, j int) bool { return list[i].version < list[j].version })
	for _, reg := range list {
		if _, err := r.AddMigration(reg.name, reg.version, "", reg.up, reg.down); err != nil {
			return err
		}
	}
	return nil
}

package migrate

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/burugo/migrant/model"
)

// Declarations is a models file: the desired model graph written with the
// same definitions migration files use.
//
//	models:
//	  - name: User
//	    properties:
//	      name: String().Required()
//	      posts: HasMany("Post")
type Declarations struct {
	Models []ModelDef `yaml:"models"`
}

// Declare parses a models file into reg. References are resolved once all models are declared.
func Declare(data []byte, reg *model.Registry) error {
	var decl Declarations
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&decl); err != nil {
		return fmt.Errorf("failed to parse models: %w", err)
	}
	for _, def := range decl.Models {
		props, err := def.Properties.Parse()
		if err != nil {
			return fmt.Errorf("model %s: %w", def.Name, err)
		}
		if _, err := reg.Declare(model.Definition{Name: def.Name, Table: def.Table, Properties: props}); err != nil {
			return err
		}
	}
	reg.ResolveRefs()
	return nil
}

// Command generate-schema writes the JSON schema of the srmeta config file.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/marmos91/srmeta/pkg/config"
)

const schemaID = "https://github.com/marmos91/srmeta/config.schema.json"

// journalTypes are the values accepted by journal.type.
var journalTypes = []any{"filesystem", "badger", "memory"}

func main() {
	output := flag.String("o", "config.schema.json", "output file, - for stdout")
	flag.Parse()

	schemaJSON, err := generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}

	if *output == "-" {
		os.Stdout.Write(append(schemaJSON, '\n'))
		return
	}
	if err := os.WriteFile(*output, schemaJSON, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schema file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("JSON schema written to %s\n", *output)
}

// generate reflects config.Config using the same keys viper reads.
func generate() ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "mapstructure",
	}

	schema := reflector.Reflect(&config.Config{})
	schema.ID = schemaID
	schema.Title = "srmeta Configuration"
	schema.Description = "Metadata volume, journal, lock and metrics settings for srmeta"

	journal, ok := schema.Properties.Get("journal")
	if !ok {
		return nil, fmt.Errorf("config schema has no journal section")
	}
	typ, ok := journal.Properties.Get("type")
	if !ok {
		return nil, fmt.Errorf("config schema has no journal.type")
	}
	typ.Enum = journalTypes

	return json.MarshalIndent(schema, "", "  ")
}

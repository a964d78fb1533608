// Package schemas embeds the JSON Schemas for structured pipeline artifacts.
package schemas

import "embed"

// ResumeDocument is the schema file that provider drafts are checked against
const ResumeDocument = "resume_document.schema.json"

//go:embed *.schema.json
var files embed.FS

// Load returns the raw content of an embedded schema file
func Load(name string) ([]byte, error) {
	return files.ReadFile(name)
}

// MustLoad is Load for schemas required at startup
func MustLoad(name string) []byte {
	data, err := Load(name)
	if err != nil {
		panic(err)
	}
	return data
}

package metrics

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadPages reads collector output from a JSON file holding either a
// single page object or a list of pages. Pages without a name or URL
// are rejected; a missing metrics map becomes an empty record.
func LoadPages(path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pages file: %w", err)
	}

	var pages []Page
	if err := json.Unmarshal(data, &pages); err != nil {
		var single Page
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("unmarshaling pages file %s: %w", path, err)
		}
		pages = []Page{single}
	}

	for i := range pages {
		if pages[i].Name == "" && pages[i].URL == "" {
			return nil, fmt.Errorf("pages file %s: page %d has neither name nor url", path, i)
		}
		if pages[i].Metrics == nil {
			pages[i].Metrics = make(Record)
		}
	}
	return pages, nil
}

package models

import (
	"sync"
	"testing"

	"gorm.io/gorm/schema"
)

func TestDetectionArtifactColumnIsUnbounded(t *testing.T) {
	s, err := schema.Parse(&Detection{}, &sync.Map{}, schema.NamingStrategy{})
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	f := s.LookUpField("artifact_number")
	if f == nil {
		t.Fatalf("artifact_number column missing")
	}
	// many label rows are joined into one value, so a size limit would reject the whole run
	if f.DataType != "text" || f.Size != 0 {
		t.Fatalf("artifact_number type=%q size=%d, want unbounded text", f.DataType, f.Size)
	}
}

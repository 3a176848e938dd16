package schema

import (
	"errors"
	"testing"
)

func testSchema() *Schema {
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"name":  {Type: TypeString, Enum: []string{"a", "b"}},
			"count": {Type: TypeInteger, Minimum: Min(0)},
			"ratio": {Type: TypeNumber},
			"ok":    {Type: TypeBoolean},
			"tags":  {Type: TypeArray, Items: &Schema{Type: TypeString}},
			"inner": {
				Type:       TypeObject,
				Properties: map[string]*Schema{"status": {Type: TypeString}},
				Required:   []string{"status"},
			},
		},
		Required: []string{"name", "count"},
	}
}

func TestValidateJSON(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		wantErr  bool
		wantPath string
	}{
		{"valid minimal", `{"name":"a","count":3}`, false, ""},
		{"valid full", `{"name":"b","count":0,"ratio":0.5,"ok":true,"tags":["x"],"inner":{"status":"s"}}`, false, ""},
		{"extra fields ignored", `{"name":"a","count":1,"other":{}}`, false, ""},
		{"not json", `{"name":`, true, ""},
		{"not object", `[1,2]`, true, ""},
		{"missing required", `{"name":"a"}`, true, "count"},
		{"enum mismatch", `{"name":"c","count":1}`, true, "name"},
		{"string for number", `{"name":"a","count":"3"}`, true, "count"},
		{"fractional integer", `{"name":"a","count":1.5}`, true, "count"},
		{"below minimum", `{"name":"a","count":-1}`, true, "count"},
		{"null field", `{"name":"a","count":1,"ok":null}`, true, "ok"},
		{"bad array item", `{"name":"a","count":1,"tags":["x",2]}`, true, "tags[1]"},
		{"nested missing", `{"name":"a","count":1,"inner":{}}`, true, "inner.status"},
	}

	s := testSchema()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateJSON([]byte(tt.json))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error %T is not a *ValidationError", err)
			}
			if tt.wantPath != "" && ve.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", ve.Path, tt.wantPath)
			}
		})
	}
}

func TestJSONSchema(t *testing.T) {
	out := testSchema().JSONSchema()

	if out["type"] != "object" {
		t.Errorf("type = %v, want object", out["type"])
	}
	if out["additionalProperties"] != false {
		t.Errorf("additionalProperties = %v, want false", out["additionalProperties"])
	}
	req, ok := out["required"].([]string)
	if !ok || len(req) != 6 {
		t.Fatalf("required = %v, want all 6 properties", out["required"])
	}
	props := out["properties"].(map[string]any)
	count := props["count"].(map[string]any)
	if count["type"] != "integer" {
		t.Errorf("count type = %v, want integer", count["type"])
	}
	tags := props["tags"].(map[string]any)
	if tags["items"].(map[string]any)["type"] != "string" {
		t.Errorf("tags items = %v, want string items", tags["items"])
	}
}

package validation

import (
	"strings"
	"testing"
)

func TestValidateTensorName(t *testing.T) {
	tests := []struct {
		name    string
		tensor  string
		wantErr bool
	}{
		// Valid names
		{"simple", "w", false},
		{"with digit", "w2", false},
		{"underscore", "embed_tokens", false},
		{"module path", "layers.0.attn.weight", false},
		{"hyphen", "block-3", false},
		{"max length", strings.Repeat("a", 64), false},
		{"leading underscore", "_hidden", false},

		// Invalid names - would corrupt result keys or logs
		{"empty", "", true},
		{"slash", "attn/weight", true},
		{"bracket", "w[0]", true},
		{"plus", "wa+wb", true},
		{"spaces", "w 2", true},
		{"newline", "w\n2", true},
		{"too long", strings.Repeat("a", 65), true},
		{"starts with dot", ".weight", true},
		{"starts with hyphen", "-w", true},
		{"unicode", "wéight", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTensorName(tt.tensor)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTensorName(%q) error = %v, wantErr %v", tt.tensor, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTensorNames(t *testing.T) {
	tests := []struct {
		name    string
		tensors []string
		wantErr bool
	}{
		{"all valid", []string{"wa", "wb", "bias"}, false},
		{"one invalid", []string{"wa", "bad name", "bias"}, true},
		{"all invalid", []string{"", "a/b"}, true},
		{"empty slice", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTensorNames(tt.tensors)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTensorNames(%v) error = %v, wantErr %v", tt.tensors, err, tt.wantErr)
			}
		})
	}
}

func TestParseSelectorExpr(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    SelectorExpr
		wantErr bool
	}{
		{"single name", "w", SelectorExpr{Names: []string{"w"}}, false},
		{"concatenation", "wa+wb", SelectorExpr{Names: []string{"wa", "wb"}}, false},
		{"triple concat", "a+b+c", SelectorExpr{Names: []string{"a", "b", "c"}}, false},
		{"concat with spaces", " wa + wb ", SelectorExpr{Names: []string{"wa", "wb"}}, false},
		{"window", "w[2:7]", SelectorExpr{Names: []string{"w"}, Lo: 2, Hi: 7, Ranged: true}, false},
		{"window from zero", "embed[0:64]", SelectorExpr{Names: []string{"embed"}, Lo: 0, Hi: 64, Ranged: true}, false},
		{"heads", "attn/4", SelectorExpr{Names: []string{"attn"}, Heads: 4}, false},

		{"empty", "", SelectorExpr{}, true},
		{"missing close bracket", "w[2:7", SelectorExpr{}, true},
		{"missing colon", "w[27]", SelectorExpr{}, true},
		{"inverted window", "w[7:2]", SelectorExpr{}, true},
		{"empty window", "w[3:3]", SelectorExpr{}, true},
		{"negative window", "w[-1:4]", SelectorExpr{}, true},
		{"non-numeric bound", "w[a:4]", SelectorExpr{}, true},
		{"one head", "attn/1", SelectorExpr{}, true},
		{"non-numeric heads", "attn/x", SelectorExpr{}, true},
		{"bad name in concat", "wa+bad name", SelectorExpr{}, true},
		{"bad name in window", "bad name[0:4]", SelectorExpr{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSelectorExpr(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSelectorExpr(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got.String() != tt.want.String() {
				t.Errorf("ParseSelectorExpr(%q) = %+v, want %+v", tt.expr, *got, tt.want)
			}
		})
	}
}

func TestSelectorExpr_String(t *testing.T) {
	tests := []struct {
		name string
		expr SelectorExpr
		want string
	}{
		{"concat", SelectorExpr{Names: []string{"wa", "wb"}}, "wa+wb"},
		{"window", SelectorExpr{Names: []string{"w"}, Lo: 2, Hi: 7, Ranged: true}, "w[2:7]"},
		{"heads", SelectorExpr{Names: []string{"attn"}, Heads: 4}, "attn/4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.expr.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

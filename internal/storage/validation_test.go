package storage

import (
	"context"
	"testing"
)

func TestValidateContext(t *testing.T) {
	tests := []struct {
		ctx     context.Context
		name    string
		wantErr bool
	}{
		{
			name:    "valid context",
			ctx:     context.Background(),
			wantErr: false,
		},
		{
			name:    "nil context",
			ctx:     nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateContext(tt.ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateContext() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateID(t *testing.T) {
	if err := validateID(1, "id"); err != nil {
		t.Errorf("validateID(1) = %v", err)
	}
	if err := validateID(0, "id"); err == nil {
		t.Error("validateID(0) should fail")
	}
}

func TestTimeScanner_Order(t *testing.T) {
	// Lexical comparison in SQL relies on fixed-width formatting.
	a := formatTime(day(2024, 3, 1))
	b := formatTime(day(2024, 3, 1).Add(500 * 1e6))
	if !(a < b) {
		t.Errorf("expected %q < %q", a, b)
	}
}

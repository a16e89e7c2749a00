package telemetry

import (
	"context"
	"testing"
)

func TestSetup_DisabledIsNoop(t *testing.T) {
	t.Parallel()
	shutdown, err := Setup(context.Background(), Config{}, "test")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		ratio   float64
		wantErr bool
	}{
		{"unset", 0, false},
		{"half", 0.5, false},
		{"all", 1, false},
		{"negative", -0.1, true},
		{"above one", 1.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Config{Endpoint: "localhost:4318", SampleRatio: tt.ratio}.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetup_InvalidRatio(t *testing.T) {
	t.Parallel()
	_, err := Setup(context.Background(), Config{Endpoint: "localhost:4318", SampleRatio: 2}, "test")
	if err == nil {
		t.Fatal("expected error for invalid sample ratio")
	}
}

func TestSampler_Description(t *testing.T) {
	t.Parallel()
	if got := sampler(0).Description(); got == sampler(0.25).Description() {
		t.Errorf("ratio sampler should differ from always-on, both %q", got)
	}
}

package main

import (
	"testing"
	"time"
)

func TestWatchInterval(t *testing.T) {
	tests := []struct {
		name     string
		once     bool
		watchSet bool
		seconds  int
		want     time.Duration
		wantErr  bool
	}{
		{name: "default runs once", once: true, seconds: defaultWatchSeconds, want: 0},
		{name: "watch overrides once", once: true, watchSet: true, seconds: 60, want: time.Minute},
		{name: "once disabled watches at default", once: false, seconds: defaultWatchSeconds, want: 5 * time.Minute},
		{name: "non-positive watch", once: true, watchSet: true, seconds: 0, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := watchInterval(tt.once, tt.watchSet, tt.seconds)
			if (err != nil) != tt.wantErr {
				t.Fatalf("watchInterval() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("watchInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}

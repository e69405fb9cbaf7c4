package discovery

import (
	"reflect"
	"testing"
)

func TestInfo_TxtRecords(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want []string
	}{
		{
			name: "empty",
			want: []string{"txtv=0"},
		},
		{
			name: "full",
			info: Info{Version: "1.0.0", DocumentType: "text", NodeID: "node-1"},
			want: []string{"txtv=0", "version=1.0.0", "doctype=text", "node=node-1"},
		},
		{
			name: "partial",
			info: Info{DocumentType: "json"},
			want: []string{"txtv=0", "doctype=json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.txtRecords(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("txtRecords() = %v, want %v", got, tt.want)
			}
		})
	}
}

package wire

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

// sliceSource is a FeatureSource over a slice; entries in disabled are
// reported unavailable.
type sliceSource struct {
	ids      []uuid.UUID
	disabled map[int]bool
}

func (s *sliceSource) Count() int { return len(s.ids) }

func (s *sliceSource) Get(index int) (uuid.UUID, bool) {
	if index < 0 || index >= len(s.ids) || s.disabled[index] {
		return uuid.Nil, false
	}
	return s.ids[index], true
}

func makeIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.UUID{0xF0, byte(i), 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, byte(i)}
	}
	return ids
}

func TestFeatureListCapacity(t *testing.T) {
	tests := []struct {
		payload int
		want    int
	}{
		{0, 0},
		{FeatureListHeaderSize - 1, 0},
		{FeatureListHeaderSize, 0},
		{FeatureListHeaderSize + UUIDSize, 1},
		{114, 6},
	}
	for _, tt := range tests {
		if got := FeatureListCapacity(tt.payload); got != tt.want {
			t.Errorf("FeatureListCapacity(%d) = %d, want %d", tt.payload, got, tt.want)
		}
	}
}

func TestEncodeFeatureListHeader(t *testing.T) {
	src := &sliceSource{ids: makeIDs(3)}
	buf := make([]byte, 114)

	n, included, err := EncodeFeatureList(buf, testGUID, 9, src, 1)
	if err != nil {
		t.Fatalf("EncodeFeatureList: %v", err)
	}
	if included != 2 {
		t.Errorf("included = %d, want 2", included)
	}
	if n != FeatureListHeaderSize+2*UUIDSize {
		t.Errorf("n = %d, want %d", n, FeatureListHeaderSize+2*UUIDSize)
	}

	got, err := DecodeFeatureList(buf[:n])
	if err != nil {
		t.Fatalf("DecodeFeatureList: %v", err)
	}
	if got.GUID != testGUID || got.BootNumber != 9 {
		t.Errorf("header = %s/%d", got.GUID, got.BootNumber)
	}
	if got.Total != 3 || got.Offset != 1 {
		t.Errorf("total/offset = %d/%d, want 3/1", got.Total, got.Offset)
	}
	if len(got.Features) != 2 || got.Features[0] != src.ids[1] || got.Features[1] != src.ids[2] {
		t.Errorf("features = %v", got.Features)
	}
}

func TestFeatureListPaginationCompleteness(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		disabled map[int]bool
		payload  int
	}{
		{"empty", 0, nil, 114},
		{"single page", 4, nil, 114},
		{"exact page", 6, nil, 114},
		{"several pages", 20, nil, 114},
		{"small payload", 7, nil, FeatureListHeaderSize + UUIDSize},
		{"with unavailable", 15, map[int]bool{0: true, 5: true, 6: true, 14: true}, 114},
		{"all unavailable", 3, map[int]bool{0: true, 1: true, 2: true}, 114},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &sliceSource{ids: makeIDs(tt.count), disabled: tt.disabled}
			buf := make([]byte, tt.payload)

			var collected []uuid.UUID
			offset := 0
			for pages := 0; ; pages++ {
				if pages > tt.count+1 {
					t.Fatal("pagination did not terminate")
				}
				n, _, err := EncodeFeatureList(buf, testGUID, 1, src, uint8(offset))
				if err != nil {
					t.Fatalf("EncodeFeatureList: %v", err)
				}
				page, err := DecodeFeatureList(buf[:n])
				if err != nil {
					t.Fatalf("DecodeFeatureList: %v", err)
				}
				if int(page.Total) != tt.count {
					t.Fatalf("total = %d, want %d", page.Total, tt.count)
				}
				if int(page.Offset) != offset {
					t.Fatalf("offset echoed = %d, want %d", page.Offset, offset)
				}
				collected = append(collected, page.Features...)
				if len(page.Features) < FeatureListCapacity(tt.payload) {
					break
				}
				offset = indexAfter(src, offset, len(page.Features))
			}

			var want []uuid.UUID
			for i, id := range src.ids {
				if !tt.disabled[i] {
					want = append(want, id)
				}
			}
			if len(collected) != len(want) {
				t.Fatalf("collected %d features, want %d", len(collected), len(want))
			}
			for i := range want {
				if collected[i] != want[i] {
					t.Errorf("feature %d = %s, want %s", i, collected[i], want[i])
				}
			}
		})
	}
}

// indexAfter returns the index following the last available feature of a
// page of n features that started at offset.
func indexAfter(src FeatureSource, offset, n int) int {
	index := offset
	for seen := 0; seen < n; index++ {
		if _, ok := src.Get(index); ok {
			seen++
		}
	}
	return index
}

func TestEncodeFeatureListBufferTooSmall(t *testing.T) {
	src := &sliceSource{ids: makeIDs(1)}
	_, _, err := EncodeFeatureList(make([]byte, FeatureListHeaderSize-1), testGUID, 1, src, 0)
	if !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("error = %v, want ErrBufferTooSmall", err)
	}
}

func TestFeatureListMarshalMatchesEncode(t *testing.T) {
	src := &sliceSource{ids: makeIDs(2)}
	buf := make([]byte, 114)
	n, _, _ := EncodeFeatureList(buf, testGUID, 5, src, 0)

	l := FeatureList{GUID: testGUID, BootNumber: 5, Total: 2, Features: src.ids}
	data, err := l.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if string(data) != string(buf[:n]) {
		t.Errorf("MarshalBinary = % X\nEncodeFeatureList = % X", data, buf[:n])
	}
}

func TestDecodeFeatureListTooShort(t *testing.T) {
	if _, err := DecodeFeatureList([]byte{byte(OpFeatureList), 2, 0, 0}); !errors.Is(err, ErrTooShort) {
		t.Errorf("error = %v, want ErrTooShort", err)
	}
}

package sstable

import (
	"fmt"
	"testing"

	"github.com/nogodb/mcsstable/row"
	"github.com/nogodb/mcsstable/schema"
	"github.com/nogodb/mcsstable/storage"
)

func TestDebugTrunc(t *testing.T) {
	s := storage.NewMem()
	var zt = func([]byte) uint64 { return 0 }
	w := NewWriter(s, "1", &schema.Definition{
		PartitionKeyColumns: []schema.Column{{Name: "pk", Type: schema.TypeInt32}},
	}, zt)
	partitions := []row.Partition{
		{
			Key: row.DecoratedKey{PartitionKey: mustEnc(t, 1)},
			Rows: []row.Row{
				{Clustering: row.ClusteringPrefix{Kind: row.BoundClustering}, Cells: nil},
			},
		},
	}
	_, err := w.Write(partitions)
	if err != nil {
		t.Fatalf("write err: %v", err)
	}
	names, _ := s.List()
	fmt.Println("files:", names)
	r, err := Open(s, "1", &schema.Definition{
		PartitionKeyColumns: []schema.Column{{Name: "pk", Type: schema.TypeInt32}},
	}, zt)
	fmt.Printf("open err: %v\n", err)
	_ = r
}

func mustEnc(t *testing.T, n int32) []byte {
	v, err := schema.EncodeValue(schema.TypeInt32, n)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

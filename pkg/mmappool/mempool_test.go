package mmappool_test

import (
	"log/slog"
	"os"
	"testing"

	"github.com/edsrzf/mmap-go"
	"github.com/johbar/pdfstream/pkg/mmappool"
)

func debugLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestMemPool(t *testing.T) {
	poolsize := 10
	mp := mmappool.New(256, poolsize, debugLogger())
	bufs := make([][]byte, 0, poolsize)
	for range poolsize {
		b, err := mp.Get()
		if err != nil {
			t.Errorf("getting element from mempool: %v", err)
		}
		bufs = append(bufs, b)
		if cap(b) != mp.ElemSize() {
			t.Errorf("got: %d, want %d elemsize", cap(b), mp.ElemSize())
		}
		if err := mmap.MMap(b).Flush(); err != nil {
			t.Error("buffer is not a mmap!")
		}
	}
	for i, b := range bufs {
		mp.Put(b)
		if mp.CurrentSize() != i+1 {
			t.Errorf("got: %v, want: %v", mp.CurrentSize(), i+1)
		}
	}
	if errs := mp.Free(); len(errs) > 0 {
		t.Errorf("got: %v", errs)
	}
}

func TestReslicingBuffers(t *testing.T) {
	mp := mmappool.New(256, 1, debugLogger())
	b, err := mp.Get()
	if err != nil {
		t.Error(err)
	}
	b = b[:128]
	mp.Put(b)
	errs := mp.Free()
	if len(errs) > 0 {
		t.Errorf("reslicing is forbidden, %v", errs)
	}
}

func TestGetSize(t *testing.T) {
	mp := mmappool.New(256, 2, debugLogger())
	small := mp.GetSize(100)
	if len(small) != 100 || cap(small) != 256 {
		t.Errorf("want len 100 cap 256, got len %d cap %d", len(small), cap(small))
	}
	large := mp.GetSize(1000)
	if len(large) != 1000 {
		t.Errorf("want len 1000, got %d", len(large))
	}
	mp.Put(small)
	mp.Put(large)
	if mp.CurrentSize() != 1 {
		t.Errorf("only the pooled buffer should have been returned, pool holds %d", mp.CurrentSize())
	}
	mp.Free()
}

func TestAppended(t *testing.T) {
	mp := mmappool.New(256, 2, debugLogger())
	orig := mp.GetSize(10)
	fits := mp.Appended(orig, append(orig[:0], "Erste Seite\n"...))
	if mp.CurrentSize() != 0 {
		t.Errorf("buffer still in use was put back, pool holds %d", mp.CurrentSize())
	}
	mp.Put(fits)
	if mp.CurrentSize() != 1 {
		t.Errorf("want buffer back in pool, pool holds %d", mp.CurrentSize())
	}

	orig = mp.GetSize(10)
	grown := mp.Appended(orig, append(orig[:0], make([]byte, 300)...))
	if len(grown) != 300 {
		t.Errorf("want len 300, got %d", len(grown))
	}
	if mp.CurrentSize() != 1 {
		t.Errorf("outgrown buffer was not put back, pool holds %d", mp.CurrentSize())
	}
	mp.Put(grown)
	if mp.CurrentSize() != 1 {
		t.Errorf("heap buffer must not enter the pool, pool holds %d", mp.CurrentSize())
	}
	if errs := mp.Free(); len(errs) > 0 {
		t.Errorf("got: %v", errs)
	}
}

func TestMemPoolFree(t *testing.T) {
	poolsize := 10
	mp := mmappool.New(256, poolsize, debugLogger())
	bufs := make([][]byte, 0, poolsize)
	for range poolsize {
		b, err := mp.Get()
		if err != nil {
			t.Error(err)
		}
		bufs = append(bufs, b)
	}
	for _, buf := range bufs {
		mp.Put(buf)
	}
	if mp.CurrentSize() != poolsize {
		t.Errorf("got: %v, want: %v", mp.CurrentSize(), poolsize)
	}
	errs := mp.Free()
	if len(errs) != 0 {
		t.Errorf("got: %v", errs)
	}
	if mp.CurrentSize() > 0 {
		t.Errorf("got: %v, want: 0", mp.CurrentSize())
	}
}

func BenchmarkMempoolAlloc(b *testing.B) {
	pool := mmappool.New(65536, 10, nil)
	for b.Loop() {
		buf, err := pool.Get()
		if err != nil {
			b.Fatal(err)
		}
		buf[0] = 1
		pool.Put(buf)
	}
}

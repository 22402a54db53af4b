package progress

import "io"

// Reader wraps an io.Reader and calls OnProgress every interval bytes and once
// when crossing 5% of Total.
type Reader struct {
	Reader     io.Reader
	Total      int64
	OnProgress func(read, total int64)

	interval   int64
	read       int64
	sinceLast  int64
}

// NewReader creates a Reader. A non-positive interval reports only at the 5% mark.
func NewReader(r io.Reader, total, interval int64, cb func(read, total int64)) *Reader {
	return &Reader{
		Reader:     r,
		Total:      total,
		OnProgress: cb,
		interval:   interval,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n <= 0 || pr.OnProgress == nil {
		return n, err
	}

	before := pr.read
	pr.read += int64(n)
	pr.sinceLast += int64(n)

	crossedFirstMark := pr.Total > 0 && before*100/pr.Total < 5 && pr.read*100/pr.Total >= 5

	if (pr.interval > 0 && pr.sinceLast >= pr.interval) || crossedFirstMark {
		pr.OnProgress(pr.read, pr.Total)
		pr.sinceLast = 0
	}

	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (pr *Reader) BytesRead() int64 {
	return pr.read
}

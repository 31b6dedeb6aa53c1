package codec_test

import (
	"bytes"
	"io"

	"github.com/couchcryptid/case-data-etl/internal/codec"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Writer", func() {
	var buf *bytes.Buffer
	var subject *codec.Writer

	BeforeEach(func() {
		buf = new(bytes.Buffer)
		subject = codec.NewWriter(buf)
	})

	It("should write the exact byte layout", func() {
		Expect(subject.WriteHeader(1)).To(Succeed())
		Expect(subject.WriteRegion(7, [codec.NumBlocks][]uint32{
			{0, 5, 0},
			{0, 0, 1},
			{0, 0, 0},
			{0, 0, 0},
		})).To(Succeed())
		Expect(subject.Close()).To(Succeed())

		Expect(buf.Bytes()).To(Equal([]byte{
			0x81,                   // region count
			0x87,                   // id
			0x83, 0x80, 0x85, 0x80, // confirmed
			0x83, 0x80, 0x80, 0x81, // deaths
			0x83, 0x80, 0x80, 0x80, // recovered
			0x83, 0x80, 0x80, 0x80, // active
		}))
	})

	It("should write an empty file", func() {
		Expect(subject.WriteHeader(0)).To(Succeed())
		Expect(subject.Close()).To(Succeed())
		Expect(buf.Bytes()).To(Equal([]byte{0x80}))
	})

	It("should reject mismatched axis lengths", func() {
		Expect(subject.WriteHeader(2)).To(Succeed())
		Expect(subject.WriteRegion(1, [codec.NumBlocks][]uint32{{1}, {2}, {3}, {4}})).To(Succeed())

		err := subject.WriteRegion(2, [codec.NumBlocks][]uint32{{1, 2}, {2, 3}, {3, 4}, {4, 5}})
		Expect(err).To(MatchError(codec.ErrAxisMismatch))

		err = subject.WriteRegion(2, [codec.NumBlocks][]uint32{{1}, {2}, {3, 4}, {4}})
		Expect(err).To(MatchError(codec.ErrAxisMismatch))
	})

	It("should enforce the declared region count", func() {
		Expect(subject.WriteHeader(1)).To(Succeed())
		Expect(subject.Close()).To(MatchError(codec.ErrRegionCount))

		w := codec.NewWriter(new(bytes.Buffer))
		Expect(w.WriteHeader(1)).To(Succeed())
		Expect(w.WriteRegion(1, [codec.NumBlocks][]uint32{})).To(Succeed())
		Expect(w.WriteRegion(2, [codec.NumBlocks][]uint32{})).To(MatchError(codec.ErrRegionCount))
	})

	It("should require a header", func() {
		Expect(subject.WriteRegion(1, [codec.NumBlocks][]uint32{})).NotTo(Succeed())
		Expect(subject.WriteHeader(0)).To(Succeed())
		Expect(subject.WriteHeader(0)).NotTo(Succeed())
	})
})

var _ = Describe("Reader", func() {
	seed := func(records ...codec.Record) []byte {
		buf := new(bytes.Buffer)
		w := codec.NewWriter(buf)
		Expect(w.WriteHeader(len(records))).To(Succeed())
		for _, rec := range records {
			Expect(w.WriteRegion(rec.ID, rec.Blocks)).To(Succeed())
		}
		Expect(w.Close()).To(Succeed())
		return buf.Bytes()
	}

	readAll := func(r *codec.Reader) ([]codec.Record, error) {
		var out []codec.Record
		for {
			rec, err := r.Next()
			if err == io.EOF {
				return out, nil
			} else if err != nil {
				return out, err
			}
			out = append(out, rec)
		}
	}

	records := []codec.Record{
		{ID: 3, Blocks: [codec.NumBlocks][]uint32{{0, 5, 0}, {0, 0, 1}, {0, 0, 0}, {0, 0, 0}}},
		{ID: 300, Blocks: [codec.NumBlocks][]uint32{{1, 2, 40000}, {0, 0, 0}, {9, 9, 9}, {1 << 30, 0, 1}}},
	}

	It("should round-trip records", func() {
		r, err := codec.NewReader(bytes.NewReader(seed(records...)), 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.RegionCount()).To(Equal(2))

		got, err := readAll(r)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(records))
	})

	It("should infer the axis length", func() {
		r, err := codec.NewReader(bytes.NewReader(seed(records...)), -1)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.AxisLen()).To(Equal(-1))

		_, err = readAll(r)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.AxisLen()).To(Equal(3))
	})

	It("should reject a mismatched out-of-band axis", func() {
		r, err := codec.NewReader(bytes.NewReader(seed(records...)), 4)
		Expect(err).NotTo(HaveOccurred())

		_, err = r.Next()
		Expect(err).To(MatchError(codec.ErrAxisMismatch))
	})

	It("should report truncation at every cut point", func() {
		data := seed(records...)
		for cut := 0; cut < len(data); cut++ {
			r, err := codec.NewReader(bytes.NewReader(data[:cut]), -1)
			if err != nil {
				Expect(err).To(MatchError(codec.ErrTruncated), "at %d", cut)
				continue
			}
			_, err = readAll(r)
			Expect(err).To(MatchError(codec.ErrTruncated), "at %d", cut)
		}
	})

	It("should not trust a huge declared block length", func() {
		data := []byte{0x81, 0x81}
		data = codec.AppendUvarint(data, 1<<31)
		data = append(data, 0x80, 0x80)

		r, err := codec.NewReader(bytes.NewReader(data), -1)
		Expect(err).NotTo(HaveOccurred())
		_, err = r.Next()
		Expect(err).To(MatchError(codec.ErrTruncated))
	})

	It("should report overflow in the stream", func() {
		r, err := codec.NewReader(bytes.NewReader([]byte{0x81, 0x01, 0x01, 0x01, 0x01, 0x01, 0x81}), -1)
		Expect(err).NotTo(HaveOccurred())
		_, err = r.Next()
		Expect(err).To(MatchError(codec.ErrVarintOverflow))
	})
})

package codec_test

import (
	"bytes"
	"io"
	"math"
	"math/rand"

	"github.com/couchcryptid/case-data-etl/internal/codec"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Varint", func() {
	It("should encode known values", func() {
		Expect(codec.AppendUvarint(nil, 0)).To(Equal([]byte{0x80}))
		Expect(codec.AppendUvarint(nil, 1)).To(Equal([]byte{0x81}))
		Expect(codec.AppendUvarint(nil, 127)).To(Equal([]byte{0xFF}))
		Expect(codec.AppendUvarint(nil, 128)).To(Equal([]byte{0x00, 0x81}))
		Expect(codec.AppendUvarint(nil, 300)).To(Equal([]byte{0x2C, 0x82}))
		Expect(codec.AppendUvarint(nil, 16383)).To(Equal([]byte{0x7F, 0xFF}))
		Expect(codec.AppendUvarint(nil, 16384)).To(Equal([]byte{0x00, 0x00, 0x81}))
		Expect(codec.AppendUvarint(nil, math.MaxUint32)).To(Equal([]byte{0x7F, 0x7F, 0x7F, 0x7F, 0x8F}))
	})

	It("should use the minimal number of bytes", func() {
		for _, tc := range []struct {
			v uint32
			n int
		}{
			{0, 1}, {0x7f, 1},
			{0x80, 2}, {0x3fff, 2},
			{0x4000, 3}, {0x1fffff, 3},
			{0x200000, 4}, {0x0fffffff, 4},
			{0x10000000, 5}, {math.MaxUint32, 5},
		} {
			Expect(codec.AppendUvarint(nil, tc.v)).To(HaveLen(tc.n), "for %d", tc.v)
			Expect(codec.Size(tc.v)).To(Equal(tc.n), "for %d", tc.v)
		}
	})

	It("should round-trip", func() {
		rnd := rand.New(rand.NewSource(1))
		values := []uint32{0, 1, 127, 128, 16383, 16384, 1<<21 - 1, 1 << 21, 1<<28 - 1, 1 << 28, math.MaxUint32}
		for i := 0; i < 10000; i++ {
			values = append(values, rnd.Uint32())
		}

		for _, v := range values {
			enc := codec.AppendUvarint(nil, v)

			got, n, err := codec.Uvarint(enc)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(v))
			Expect(n).To(Equal(len(enc)))

			got, err = codec.ReadUvarint(bytes.NewReader(enc))
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(v))
		}
	})

	It("should stop at the terminal byte", func() {
		v, n, err := codec.Uvarint([]byte{0x00, 0x81, 0xFF})
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint32(128)))
		Expect(n).To(Equal(2))
	})

	It("should reject runs without a terminal byte", func() {
		_, _, err := codec.Uvarint([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x86})
		Expect(err).To(MatchError(codec.ErrVarintOverflow))

		_, err = codec.ReadUvarint(bytes.NewReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x86}))
		Expect(err).To(MatchError(codec.ErrVarintOverflow))
	})

	It("should reject values wider than 32 bits", func() {
		_, _, err := codec.Uvarint([]byte{0x7F, 0x7F, 0x7F, 0x7F, 0xFF})
		Expect(err).To(MatchError(codec.ErrVarintOverflow))
	})

	It("should report truncation", func() {
		_, _, err := codec.Uvarint(nil)
		Expect(err).To(MatchError(codec.ErrTruncated))

		_, _, err = codec.Uvarint([]byte{0x00, 0x00})
		Expect(err).To(MatchError(codec.ErrTruncated))
		Expect(err).To(MatchError(io.ErrUnexpectedEOF))

		_, err = codec.ReadUvarint(bytes.NewReader([]byte{0x00}))
		Expect(err).To(MatchError(codec.ErrTruncated))
	})

	It("should return EOF on an empty stream", func() {
		_, err := codec.ReadUvarint(bytes.NewReader(nil))
		Expect(err).To(Equal(io.EOF))
	})
})

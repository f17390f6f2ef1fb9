package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// Write encodes the model as binary STL
func Write(w io.Writer, model *Model) error {
	if uint64(len(model.Triangles)) > math.MaxUint32 {
		return fmt.Errorf("too many triangles for binary STL: %d", len(model.Triangles))
	}

	header := make([]byte, headerSize)
	copy(header, model.Name)
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(model.Triangles))); err != nil {
		return fmt.Errorf("failed to write triangle count: %w", err)
	}

	buf := make([]byte, triangleSize)
	for i, triangle := range model.Triangles {
		off := 0
		for _, v := range [4][3]float32{
			triangle.Normal.Float32(),
			triangle.V1.Float32(),
			triangle.V2.Float32(),
			triangle.V3.Float32(),
		} {
			for _, c := range v {
				binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(c))
				off += 4
			}
		}
		binary.LittleEndian.PutUint16(buf[off:], 0)

		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("failed to write triangle %d: %w", i, err)
		}
	}

	return nil
}

// WriteFile encodes the model as binary STL into filename
func WriteFile(filename string, model *Model) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	bw := bufio.NewWriter(file)
	if err := Write(bw, model); err != nil {
		file.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to flush %s: %w", filename, err)
	}
	return file.Close()
}

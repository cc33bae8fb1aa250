package validator

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/update-packager/internal/domain/update"
)

const (
	// hexExtension marks Intel HEX application images.
	hexExtension = ".hex"

	hexRecordData = 0x00
	hexRecordEOF  = 0x01

	// hexRecordOverhead is the byte count, address, type and checksum of a record.
	hexRecordOverhead = 5
)

var (
	errHexRecord   = errors.New("malformed hex record")
	errHexChecksum = errors.New("hex record checksum mismatch")
)

// HexDeviceChecker looks for the accepted device names inside the data
// records of Intel HEX images. Other formats are not inspected.
type HexDeviceChecker struct{}

// Compatible implements CompatibilityChecker.
func (HexDeviceChecker) Compatible(slot *update.NodeSlot, path string) (bool, error) {
	if !strings.EqualFold(filepath.Ext(path), hexExtension) {
		return true, nil
	}

	data, err := decodeHexFile(path)
	if err != nil {
		return false, err
	}

	for _, name := range slot.Device.AcceptedNames() {
		if bytes.Contains(data, []byte(name)) {
			return true, nil
		}
	}

	return false, nil
}

// decodeHexFile concatenates the payload of all data records in file order.
func decodeHexFile(path string) ([]byte, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = file.Close()
	}()

	var (
		data    []byte
		scanner = bufio.NewScanner(file)
		line    int
	)

	for scanner.Scan() {
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		record, decodeErr := decodeHexRecord(text)
		if decodeErr != nil {
			return nil, fmt.Errorf("line %d: %w", line, decodeErr)
		}

		switch record[3] {
		case hexRecordData:
			data = append(data, record[4:len(record)-1]...)
		case hexRecordEOF:
			return data, nil
		}
	}

	if err = scanner.Err(); err != nil {
		return nil, err
	}

	return data, nil
}

// decodeHexRecord decodes one ":LLAAAATT...CC" line and verifies its checksum.
func decodeHexRecord(text string) ([]byte, error) {
	if !strings.HasPrefix(text, ":") {
		return nil, errHexRecord
	}

	record, err := hex.DecodeString(text[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errHexRecord, err)
	}

	if len(record) < hexRecordOverhead || len(record) != int(record[0])+hexRecordOverhead {
		return nil, errHexRecord
	}

	var sum byte
	for _, b := range record {
		sum += b
	}

	if sum != 0 {
		return nil, errHexChecksum
	}

	return record, nil
}

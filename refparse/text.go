package refparse

import (
	"bufio"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/lexandro/assetindex-mcp/asset"
)

const (
	guidToken   = "guid: "
	fileIDToken = "fileID: "

	// localIDDivisor groups serialized file ids into embedded objects.
	localIDDivisor = 100000
)

// ScanText scans serialized text content line by line for "guid: <id>"
// tokens, pairing each with the local element id derived from a "fileID: N,"
// token on the same line. On a read error the refs found so far are returned
// with the error.
func ScanText(r io.Reader) ([]Ref, error) {
	var refs []Ref
	reader := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if ref, ok := parseLine(line); ok {
			refs = append(refs, ref)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return refs, nil
			}
			return refs, err
		}
	}
}

func parseLine(line string) (Ref, bool) {
	idx := strings.Index(line, guidToken)
	if idx < 0 {
		return Ref{}, false
	}
	start := idx + len(guidToken)
	if len(line) < start+32 {
		return Ref{}, false
	}
	id := line[start : start+32]
	if !asset.IsValidID(id) {
		return Ref{}, false
	}
	ref := Ref{Target: asset.ID(id)}
	if local, ok := parseLocalID(line); ok {
		ref.Local = local
		ref.HasLocal = true
	}
	return ref, true
}

func parseLocalID(line string) (int32, bool) {
	idx := strings.Index(line, fileIDToken)
	if idx < 0 {
		return 0, false
	}
	rest := line[idx+len(fileIDToken):]
	end := strings.IndexByte(rest, ',')
	if end < 0 {
		return 0, false
	}
	fileID, err := strconv.ParseInt(strings.TrimSpace(rest[:end]), 10, 64)
	if err != nil {
		return 0, false
	}
	local := fileID / localIDDivisor
	if local > math.MaxInt32 || local < math.MinInt32 {
		return 0, false
	}
	return int32(local), true
}

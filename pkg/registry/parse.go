package registry

import (
	"bufio"
	"io"
	"strings"

	"github.com/dimchansky/utfbom"
	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/PR-CYBR/adsb-ingest/pkg/model"
)

// parseTar1090 reads the tar1090-db csv: hex;registration;type;flags;description;year;owner;
// Separators may be escaped with a backslash, which rules out encoding/csv.
func parseTar1090(r io.Reader) (map[string]*model.Details, error) {
	nMap := map[string]*model.Details{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := splitEscaped(scanner.Text(), ';')
		hex := strings.ToLower(strings.TrimSpace(fields[0]))
		if hex == "" {
			continue
		}
		d := &model.Details{}
		for i := 1; i < len(fields) && i <= 6; i++ {
			v := strings.ReplaceAll(fields[i], `\;`, ";")
			if v == "" {
				continue
			}
			switch i {
			case 1:
				d.Registration = &v
			case 2:
				d.TypeCode = &v
			case 3:
				flags := []**bool{&d.Military, &d.Interesting, &d.PIA, &d.LADD}
				for j, dst := range flags {
					if j < len(v) && v[j] == '1' {
						*dst = &trueVar
					}
				}
			case 4:
				d.Description = &v
			case 5:
				d.Manufactured = &v
			case 6:
				d.Owner = &v
			}
		}
		nMap[hex] = d
	}
	return nMap, scanner.Err()
}

func splitEscaped(line string, sep byte) []string {
	var fields []string
	start := 0
	for i := 0; i < len(line); i++ {
		if line[i] == sep && (i == 0 || line[i-1] != '\\') {
			fields = append(fields, line[start:i])
			start = i + 1
		}
	}
	return append(fields, line[start:])
}

// faaRecord holds the MASTER.txt columns we use; the file has many more.
type faaRecord struct {
	NNumber      string `csv:"N-NUMBER"`
	YearMfr      string `csv:"YEAR MFR"`
	Name         string `csv:"NAME"`
	ModeSCodeHex string `csv:"MODE S CODE HEX"`
}

// parseFAA reads the FAA releasable aircraft MASTER.txt, which starts with a
// UTF-8 BOM and pads every value with spaces.
func parseFAA(r io.Reader) (map[string]*model.Details, error) {
	records := []*faaRecord{}
	if err := gocsv.UnmarshalCSV(gocsv.LazyCSVReader(utfbom.SkipOnly(r)), &records); err != nil {
		return nil, errors.Wrap(err, "failed to parse registry file as csv")
	}

	nMap := make(map[string]*model.Details, len(records))
	for _, rec := range records {
		hex := strings.ToLower(strings.TrimSpace(rec.ModeSCodeHex))
		if hex == "" {
			continue
		}
		d := &model.Details{}
		if n := strings.TrimSpace(rec.NNumber); n != "" {
			reg := "N" + n
			d.Registration = &reg
		}
		if y := strings.TrimSpace(rec.YearMfr); y != "" {
			d.Manufactured = &y
		}
		if name := strings.TrimSpace(rec.Name); name != "" {
			d.Owner = &name
		}
		nMap[hex] = d
	}
	return nMap, nil
}

package probe

import (
	"fmt"
	"strconv"
	"strings"
)

// parseModemOutput parses the modem query helper's "key=value" line output,
// e.g. "rsrp=-95.0 sinr=12.5 carrier=Verizon cell_id=4A2B".
func parseModemOutput(out string) (CellularSignal, error) {
	var sig CellularSignal
	found := false
	for _, field := range strings.Fields(out) {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := kv[0], kv[1]
		switch key {
		case "rsrp":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return sig, fmt.Errorf("rsrp: %w", err)
			}
			sig.SignalPowerDBM = f
			found = true
		case "sinr":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return sig, fmt.Errorf("sinr: %w", err)
			}
			sig.SignalToNoiseDB = f
			found = true
		case "carrier":
			sig.Carrier = val
			found = true
		case "cell_id":
			sig.CellID = val
			found = true
		}
	}
	if !found {
		return sig, fmt.Errorf("no recognized fields in modem output %q", out)
	}
	return sig, nil
}

package snapshot

import (
	"math"

	"go.uber.org/zap"
)

// Merge combines the four data sources into one keyed snapshot and computes
// the aggregate totals. It is pure: the same inputs always produce the same
// snapshot, and no input map is mutated.
//
// Devices without a usable identifier are dropped and logged. Usage records
// whose identifier matches no device are discarded silently. A missing balance
// amount falls back to the balance embedded in the account payload.
func Merge(
	devices []map[string]any,
	usage []map[string]any,
	account map[string]any,
	balance map[string]any,
	log *zap.Logger,
) *Snapshot {
	if log == nil {
		log = zap.NewNop()
	}

	byID := make(map[string]DeviceRecord, len(devices))
	for _, raw := range devices {
		dev, ok := DecodeDevice(raw)
		if !ok {
			log.Warn("device without identifier dropped")
			continue
		}
		byID[dev.ICCID] = dev
	}

	for _, raw := range usage {
		record, ok := DecodeUsage(raw)
		if !ok {
			continue
		}
		dev, ok := byID[record.ICCID]
		if !ok {
			// No orphan bucket: usage for unknown devices is discarded.
			continue
		}
		report := record
		dev.Report = &report
		byID[record.ICCID] = dev
	}

	snap := &Snapshot{
		Devices: byID,
		Account: DecodeAccount(account),
		Balance: DecodeBalance(balance),
	}
	if snap.Balance.Amount == nil && snap.Account.Balance != nil {
		amount := *snap.Account.Balance
		snap.Balance.Amount = &amount
	}
	if snap.Balance.Currency == "" {
		snap.Balance.Currency = snap.Account.Currency
	}
	snap.Totals = computeTotals(byID)
	return snap
}

// computeTotals makes one pass over every device. Non-numeric or missing cost
// values are skipped rather than failing the computation.
func computeTotals(devices map[string]DeviceRecord) AggregateTotals {
	var totals AggregateTotals
	for _, dev := range devices {
		totals.DataBytes += dev.DataBytes()
		totals.SMSSent += dev.SMSSent()
		totals.SMSReceived += dev.SMSReceived()
		if dev.Costs.Known {
			totals.TotalCost += dev.Costs.Total
		}
		if dev.Active() {
			totals.ActiveSims++
		} else {
			totals.InactiveSims++
		}
	}
	totals.SMSTotal = totals.SMSSent + totals.SMSReceived
	if totals.DataBytes > 0 {
		totals.DataMB = round2(float64(totals.DataBytes) / (1024 * 1024))
	}
	totals.TotalCost = round2(totals.TotalCost)
	return totals
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

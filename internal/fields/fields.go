// Package fields defines the display/control units exposed over the snapshot.
// Each entry pairs a stable key with an extractor over the typed records, so
// consumers can toggle units individually and each entry can be tested against
// a snapshot fixture in isolation.
package fields

import (
	"math"

	"github.com/samber/lo"
	"github.com/smallbiznis/simwatch/internal/snapshot"
)

// DeviceField describes one per-device display unit.
type DeviceField struct {
	Key   string
	Name  string
	Value func(snapshot.DeviceRecord) any
	Attrs func(snapshot.DeviceRecord) map[string]any
}

// AccountField describes one account-level display unit over the snapshot.
type AccountField struct {
	Key   string
	Name  string
	Value func(*snapshot.Snapshot) any
	Attrs func(*snapshot.Snapshot) map[string]any
}

// DeviceFields is the static strategy table for per-device units.
var DeviceFields = []DeviceField{
	{
		Key:  "data_usage",
		Name: "Data Usage",
		Value: func(d snapshot.DeviceRecord) any {
			if !d.PeriodPresent && d.Report == nil {
				return nil
			}
			return bytesToMB(d.DataBytes())
		},
		Attrs: func(d snapshot.DeviceRecord) map[string]any {
			return map[string]any{
				"raw_bytes":      d.DataBytes(),
				"data_sessions":  d.Period.DataSessions,
				"total_sessions": d.Period.TotalSessions,
			}
		},
	},
	{
		Key:  "status",
		Name: "Status",
		Value: func(d snapshot.DeviceRecord) any {
			if d.State == "" {
				return nil
			}
			return d.State
		},
		Attrs: func(d snapshot.DeviceRecord) map[string]any {
			return map[string]any{
				"autodisable": d.AutoDisable,
				"imei_lock":   d.IMEILock,
			}
		},
	},
	{
		Key:  "network",
		Name: "Network Operator",
		Value: func(d snapshot.DeviceRecord) any {
			if d.NetworkOperator == "" {
				return nil
			}
			return d.NetworkOperator
		},
		Attrs: func(d snapshot.DeviceRecord) map[string]any {
			return map[string]any{
				"mcc": d.MCC,
				"mnc": d.MNC,
			}
		},
	},
	{
		Key:  "ip_address",
		Name: "IP Address",
		Value: func(d snapshot.DeviceRecord) any {
			if d.PublicIP != "" {
				return d.PublicIP
			}
			if d.PrivateIP != "" {
				return d.PrivateIP
			}
			return nil
		},
		Attrs: func(d snapshot.DeviceRecord) map[string]any {
			return map[string]any{
				"public_ip":          d.PublicIP,
				"private_network_ip": d.PrivateIP,
			}
		},
	},
	{
		Key:   "iccid",
		Name:  "ICCID",
		Value: func(d snapshot.DeviceRecord) any { return d.ICCID },
	},
	{
		Key:  "imei",
		Name: "IMEI",
		Value: func(d snapshot.DeviceRecord) any {
			if d.IMEI == "" {
				return nil
			}
			return d.IMEI
		},
		Attrs: func(d snapshot.DeviceRecord) map[string]any {
			return map[string]any{
				"imei_lock": d.IMEILock,
				"hardware":  d.Hardware,
			}
		},
	},
	{
		Key:  "msisdn",
		Name: "Phone Number (MSISDN)",
		Value: func(d snapshot.DeviceRecord) any {
			if d.MSISDN == "" {
				return nil
			}
			return d.MSISDN
		},
	},
	{
		Key:  "plan",
		Name: "Coverage Plan",
		Value: func(d snapshot.DeviceRecord) any {
			if d.Coverage == "" {
				return nil
			}
			return d.Coverage
		},
		Attrs: func(d snapshot.DeviceRecord) map[string]any {
			return map[string]any{
				"plan_id":     d.PlanID,
				"sim_profile": d.Profile,
			}
		},
	},
	{
		Key:  "monthly_cost",
		Name: "Monthly Cost",
		Value: func(d snapshot.DeviceRecord) any {
			if !d.Costs.Known {
				return nil
			}
			return d.Costs.Total
		},
		Attrs: func(d snapshot.DeviceRecord) map[string]any {
			return map[string]any{
				"data_cost":   d.Costs.Data,
				"sms_cost":    d.Costs.SMS,
				"line_rental": d.Costs.LineRental,
			}
		},
	},
	{
		Key:   "sms_count",
		Name:  "SMS Total",
		Value: func(d snapshot.DeviceRecord) any { return d.SMSSent() + d.SMSReceived() },
		Attrs: func(d snapshot.DeviceRecord) map[string]any {
			return map[string]any{
				"sms_sent":     d.SMSSent(),
				"sms_received": d.SMSReceived(),
			}
		},
	},
	{
		Key:   "sms_sent",
		Name:  "SMS Sent",
		Value: func(d snapshot.DeviceRecord) any { return d.SMSSent() },
	},
	{
		Key:   "sms_received",
		Name:  "SMS Received",
		Value: func(d snapshot.DeviceRecord) any { return d.SMSReceived() },
	},
	{
		Key:  "hardware",
		Name: "Hardware",
		Value: func(d snapshot.DeviceRecord) any {
			if d.Hardware == "" {
				return nil
			}
			return d.Hardware
		},
	},
	{
		Key:   "online",
		Name:  "Online Status",
		Value: func(d snapshot.DeviceRecord) any { return d.Active() },
	},
}

// AccountFields is the static strategy table for account-level units.
var AccountFields = []AccountField{
	{
		Key:  "account_balance",
		Name: "Account Balance",
		Value: func(s *snapshot.Snapshot) any {
			if s.Balance.Amount == nil {
				return nil
			}
			return *s.Balance.Amount
		},
		Attrs: func(s *snapshot.Snapshot) map[string]any {
			currency := s.Balance.Currency
			if currency == "" {
				currency = "USD"
			}
			return map[string]any{
				"currency":      currency,
				"auto_recharge": s.Account.AutoRecharge,
			}
		},
	},
	{
		Key:   "total_sims",
		Name:  "Total SIMs",
		Value: func(s *snapshot.Snapshot) any { return len(s.Devices) },
	},
	{
		Key:   "active_sims",
		Name:  "Active SIMs",
		Value: func(s *snapshot.Snapshot) any { return s.Totals.ActiveSims },
	},
	{
		Key:   "inactive_sims",
		Name:  "Inactive SIMs",
		Value: func(s *snapshot.Snapshot) any { return s.Totals.InactiveSims },
	},
	{
		Key:   "total_data_usage",
		Name:  "Total Data Usage",
		Value: func(s *snapshot.Snapshot) any { return s.Totals.DataMB },
		Attrs: func(s *snapshot.Snapshot) map[string]any {
			return map[string]any{"raw_bytes": s.Totals.DataBytes}
		},
	},
	{
		Key:   "total_monthly_cost",
		Name:  "Total Monthly Cost",
		Value: func(s *snapshot.Snapshot) any { return s.Totals.TotalCost },
	},
	{
		Key:   "total_sms_sent",
		Name:  "Total SMS Sent",
		Value: func(s *snapshot.Snapshot) any { return s.Totals.SMSSent },
	},
	{
		Key:   "total_sms_received",
		Name:  "Total SMS Received",
		Value: func(s *snapshot.Snapshot) any { return s.Totals.SMSReceived },
	},
	{
		Key:   "total_sms",
		Name:  "Total SMS",
		Value: func(s *snapshot.Snapshot) any { return s.Totals.SMSTotal },
		Attrs: func(s *snapshot.Snapshot) map[string]any {
			return map[string]any{
				"sent":     s.Totals.SMSSent,
				"received": s.Totals.SMSReceived,
			}
		},
	},
}

// DeviceFieldKeys lists all device field keys in table order.
func DeviceFieldKeys() []string {
	return lo.Map(DeviceFields, func(f DeviceField, _ int) string { return f.Key })
}

// AccountFieldKeys lists all account field keys in table order.
func AccountFieldKeys() []string {
	return lo.Map(AccountFields, func(f AccountField, _ int) string { return f.Key })
}

// LookupDevice finds a device field by key.
func LookupDevice(key string) (DeviceField, bool) {
	return lo.Find(DeviceFields, func(f DeviceField) bool { return f.Key == key })
}

// LookupAccount finds an account field by key.
func LookupAccount(key string) (AccountField, bool) {
	return lo.Find(AccountFields, func(f AccountField) bool { return f.Key == key })
}

func bytesToMB(v int64) float64 {
	return math.Round(float64(v)/(1024*1024)*100) / 100
}

package snapshot

import (
	"strconv"
	"strings"
)

// Ordered alias tables for fields that appeared under different names across
// API versions. The first present key wins.
var (
	identifierAliases = []string{"iccid", "ICCID", "id"}
	operatorAliases   = []string{
		"operator", "network", "carrier", "operator_name",
		"network_name", "current_operator", "last_operator", "connected_network",
	}
	mccAliases = []string{"mcc", "last_mcc"}
	mncAliases = []string{"mnc", "last_mnc"}

	usageDataAliases    = []string{"data", "data_bytes", "bytes"}
	usageSentAliases    = []string{"sms_mo", "sms_sent"}
	usageRecvAliases    = []string{"sms_mt", "sms_received"}
	usageSessionAliases = []string{"data_sessions", "sessions"}

	balanceAmountAliases = []string{"balance", "amount"}
)

// States that classify a device as active. Everything else, including unknown
// and missing states, counts as inactive.
var activeStates = map[string]bool{
	"enabled": true,
	"active":  true,
}

// UsagePeriod is the metered usage for the current period.
type UsagePeriod struct {
	DataBytes     int64 `json:"data_bytes"`
	SMSSent       int64 `json:"sms_sent"`
	SMSReceived   int64 `json:"sms_received"`
	DataSessions  int64 `json:"data_sessions"`
	TotalSessions int64 `json:"total_sessions"`
}

// CostPeriod is the accumulated cost for the current period. Total is only
// meaningful when Known is set; providers sometimes omit or garble it.
type CostPeriod struct {
	Total      float64 `json:"total"`
	Known      bool    `json:"known"`
	Data       float64 `json:"data"`
	SMS        float64 `json:"sms"`
	LineRental float64 `json:"line_rental"`
}

// UsageRecord is one record from the usage endpoint.
type UsageRecord struct {
	ICCID       string `json:"iccid"`
	DataBytes   int64  `json:"data_bytes"`
	SMSSent     int64  `json:"sms_sent"`
	SMSReceived int64  `json:"sms_received"`
	Sessions    int64  `json:"sessions"`
}

// DeviceRecord is one managed SIM/device in the snapshot.
type DeviceRecord struct {
	ICCID    string `json:"iccid"`
	Name     string `json:"name,omitempty"`
	State    string `json:"state"` // normalized lower-case
	Coverage string `json:"coverage,omitempty"`
	PlanID   string `json:"plan_id,omitempty"`
	Profile  string `json:"sim_profile,omitempty"`
	Hardware string `json:"hardware,omitempty"`
	IMEI     string `json:"imei,omitempty"`
	MSISDN   string `json:"msisdn,omitempty"`

	PublicIP  string `json:"public_ip,omitempty"`
	PrivateIP string `json:"private_network_ip,omitempty"`

	NetworkOperator string `json:"network_operator,omitempty"`
	MCC             string `json:"mcc,omitempty"`
	MNC             string `json:"mnc,omitempty"`

	IMEILock    bool `json:"imei_lock,omitempty"`
	AutoDisable bool `json:"autodisable,omitempty"`

	// Period is the usage embedded in the device payload; PeriodPresent marks
	// whether the payload carried one at all.
	Period        UsagePeriod `json:"period"`
	PeriodPresent bool        `json:"period_present"`
	Costs         CostPeriod  `json:"costs"`

	// Report is the record from the usage endpoint, attached during merge.
	Report *UsageRecord `json:"usage,omitempty"`
}

// Active reports whether the device state classifies as active.
func (d DeviceRecord) Active() bool {
	return activeStates[d.State]
}

// DataBytes returns metered data for the period, preferring the device's own
// embedded usage over the attached usage report.
func (d DeviceRecord) DataBytes() int64 {
	if d.PeriodPresent {
		return d.Period.DataBytes
	}
	if d.Report != nil {
		return d.Report.DataBytes
	}
	return 0
}

func (d DeviceRecord) SMSSent() int64 {
	if d.PeriodPresent {
		return d.Period.SMSSent
	}
	if d.Report != nil {
		return d.Report.SMSSent
	}
	return 0
}

func (d DeviceRecord) SMSReceived() int64 {
	if d.PeriodPresent {
		return d.Period.SMSReceived
	}
	if d.Report != nil {
		return d.Report.SMSReceived
	}
	return 0
}

// AccountRecord is account-level metadata. Optional; absence tolerated.
type AccountRecord struct {
	Present      bool     `json:"present"`
	Currency     string   `json:"currency,omitempty"`
	AutoRecharge bool     `json:"auto_recharge,omitempty"`
	Balance      *float64 `json:"balance,omitempty"`
}

// BalanceRecord is the account monetary balance.
type BalanceRecord struct {
	Amount   *float64 `json:"amount,omitempty"`
	Currency string   `json:"currency,omitempty"`
}

// AggregateTotals are derived sums over every device, recomputed fully on
// each refresh.
type AggregateTotals struct {
	DataBytes    int64   `json:"data_usage_bytes"`
	DataMB       float64 `json:"data_usage_mb"`
	TotalCost    float64 `json:"total_cost"`
	ActiveSims   int     `json:"active_sims"`
	InactiveSims int     `json:"inactive_sims"`
	SMSSent      int64   `json:"sms_sent"`
	SMSReceived  int64   `json:"sms_received"`
	SMSTotal     int64   `json:"sms_total"`
}

// Snapshot is the point-in-time merged state, replaced wholesale each cycle.
type Snapshot struct {
	Devices map[string]DeviceRecord `json:"simcards"`
	Account AccountRecord           `json:"account"`
	Balance BalanceRecord           `json:"balance"`
	Totals  AggregateTotals         `json:"totals"`
}

// Empty returns a snapshot with no devices, used before the first refresh.
func Empty() *Snapshot {
	return &Snapshot{Devices: map[string]DeviceRecord{}}
}

// DecodeDevice resolves a raw device payload into a typed record. The second
// return is false when no usable identifier is present.
func DecodeDevice(raw map[string]any) (DeviceRecord, bool) {
	iccid := firstText(raw, identifierAliases)
	if iccid == "" {
		return DeviceRecord{}, false
	}

	dev := DeviceRecord{
		ICCID:           iccid,
		Name:            text(raw["name"]),
		State:           strings.ToLower(firstText(raw, []string{"state", "status"})),
		Coverage:        text(raw["coverage"]),
		PlanID:          text(raw["plan_id"]),
		Profile:         text(raw["sim_profile"]),
		Hardware:        text(raw["hardware"]),
		IMEI:            text(raw["imei"]),
		MSISDN:          text(raw["msisdn"]),
		PublicIP:        text(raw["public_ip"]),
		PrivateIP:       text(raw["private_network_ip"]),
		NetworkOperator: firstText(raw, operatorAliases),
		MCC:             firstText(raw, mccAliases),
		MNC:             firstText(raw, mncAliases),
		IMEILock:        boolean(raw["imei_lock"]),
		AutoDisable:     boolean(raw["autodisable"]),
	}

	if period, ok := raw["current_month_usage"].(map[string]any); ok {
		dev.PeriodPresent = true
		dev.Period = UsagePeriod{
			DataBytes:     firstInt(period, usageDataAliases),
			SMSSent:       firstInt(period, usageSentAliases),
			SMSReceived:   firstInt(period, usageRecvAliases),
			DataSessions:  integer(period["data_sessions"]),
			TotalSessions: integer(period["total_sessions"]),
		}
	}
	if costs, ok := raw["current_month_costs"].(map[string]any); ok {
		if total, known := number(costs["total"]); known {
			dev.Costs.Total = total
			dev.Costs.Known = true
		}
		dev.Costs.Data, _ = number(costs["data"])
		dev.Costs.SMS, _ = number(costs["sms"])
		dev.Costs.LineRental, _ = number(costs["line_rental"])
	}

	return dev, true
}

// DecodeUsage resolves a raw usage payload into a typed record. The second
// return is false when no usable identifier is present.
func DecodeUsage(raw map[string]any) (UsageRecord, bool) {
	iccid := firstText(raw, identifierAliases)
	if iccid == "" {
		return UsageRecord{}, false
	}
	return UsageRecord{
		ICCID:       iccid,
		DataBytes:   firstInt(raw, usageDataAliases),
		SMSSent:     firstInt(raw, usageSentAliases),
		SMSReceived: firstInt(raw, usageRecvAliases),
		Sessions:    firstInt(raw, usageSessionAliases),
	}, true
}

// DecodeAccount resolves the account payload. A nil or empty payload yields a
// record with Present unset.
func DecodeAccount(raw map[string]any) AccountRecord {
	if len(raw) == 0 {
		return AccountRecord{}
	}
	acc := AccountRecord{
		Present:      true,
		Currency:     text(raw["currency"]),
		AutoRecharge: boolean(raw["auto_recharge"]),
	}
	if balance, ok := number(raw["balance"]); ok {
		acc.Balance = &balance
	}
	return acc
}

// DecodeBalance resolves the balance payload.
func DecodeBalance(raw map[string]any) BalanceRecord {
	bal := BalanceRecord{Currency: text(raw["currency"])}
	for _, key := range balanceAmountAliases {
		if amount, ok := number(raw[key]); ok {
			bal.Amount = &amount
			break
		}
	}
	return bal
}

func firstText(m map[string]any, keys []string) string {
	for _, key := range keys {
		if v := text(m[key]); v != "" {
			return v
		}
	}
	return ""
}

func firstInt(m map[string]any, keys []string) int64 {
	for _, key := range keys {
		if _, ok := m[key]; ok {
			return integer(m[key])
		}
	}
	return 0
}

func text(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	default:
		return ""
	}
}

func boolean(v any) bool {
	b, _ := v.(bool)
	return b
}

func integer(v any) int64 {
	f, ok := number(v)
	if !ok {
		return 0
	}
	return int64(f)
}

// number tolerates JSON numbers, Go integers and numeric strings. Anything
// else reports not-known so callers can skip it instead of failing.
func number(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

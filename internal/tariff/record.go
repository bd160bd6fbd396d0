package tariff

// Record is one emitted row, exposed as its ordered column values.
type Record interface {
	Values() []string
}

// VPRecord is one passenger-vehicle rate line. Amounts keep their source
// formatting ("1 200", "45,00") and are never converted to numbers.
type VPRecord struct {
	Category      string
	Model         string
	DailyRate     string
	MaxDeductible string
	CDW           string
	TP            string
	ReducedCDW    string
	ReducedTP     string
	SuperCover    string
}

// Values returns the record in VPHeaders order.
func (r VPRecord) Values() []string {
	return []string{
		r.Category, r.Model, r.DailyRate, r.MaxDeductible,
		r.CDW, r.TP, r.ReducedCDW, r.ReducedTP, r.SuperCover,
	}
}

// VURecord is one utility-vehicle rate line.
type VURecord struct {
	Category         string
	Model            string
	Volume           string
	DailyRate        string
	ExtraKm          string
	ReducedCDW       string
	ReducedTP        string
	SuperCover       string
	TopPartGuarantee string
}

// Values returns the record in VUHeaders order.
func (r VURecord) Values() []string {
	return []string{
		r.Category, r.Model, r.Volume, r.DailyRate, r.ExtraKm,
		r.ReducedCDW, r.ReducedTP, r.SuperCover, r.TopPartGuarantee,
	}
}

// Rows flattens records into their column values, preserving order.
func Rows[T Record](recs []T) [][]string {
	out := make([][]string, len(recs))
	for i, r := range recs {
		out[i] = r.Values()
	}
	return out
}

var (
	_ Record = VPRecord{}
	_ Record = VURecord{}
)

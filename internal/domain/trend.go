package domain

import "time"

// TrendRecord is the narrow view of one historical record that the trend
// aggregator needs: when it happened and how much payload it carried.
type TrendRecord struct {
	Timestamp time.Time
	Bytes     int64
}

// TrendBucket is one fixed-width slot in an aggregated series. Start is
// truncated to the top of its hour; Label is what charts display.
type TrendBucket struct {
	Start     time.Time `json:"-"`
	Label     string    `json:"time"`
	Events    int64     `json:"events"`
	IngressKB int64     `json:"ingress_kb"`
	EgressKB  int64     `json:"egress_kb"`
}

package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Datum is one CloudWatch data point.
type Datum struct {
	Name       string
	Value      float64
	Unit       cwtypes.StandardUnit
	Dimensions map[string]string
}

// MetricsEmitter writes custom metrics to CloudWatch under a namespace.
type MetricsEmitter struct {
	CloudWatch CloudWatchAPI
	Namespace  string
	nowFunc    func() time.Time
}

// NewMetricsEmitter returns an emitter bound to namespace.
func NewMetricsEmitter(cw CloudWatchAPI, namespace string) *MetricsEmitter {
	return &MetricsEmitter{
		CloudWatch: cw,
		Namespace:  namespace,
		nowFunc:    time.Now,
	}
}

// maxDatumsPerCall is the PutMetricData batch limit.
const maxDatumsPerCall = 1000

// Put sends datums in as few PutMetricData calls as possible.
func (m *MetricsEmitter) Put(ctx context.Context, datums ...Datum) error {
	if m == nil || m.CloudWatch == nil || len(datums) == 0 {
		return nil
	}
	now := m.nowFunc()

	data := make([]cwtypes.MetricDatum, 0, len(datums))
	for _, d := range datums {
		unit := d.Unit
		if unit == "" {
			unit = cwtypes.StandardUnitCount
		}
		md := cwtypes.MetricDatum{
			MetricName: awsString(d.Name),
			Value:      float64Ptr(d.Value),
			Unit:       unit,
			Timestamp:  &now,
		}
		// stable order keeps dimension sets comparable
		keys := make([]string, 0, len(d.Dimensions))
		for k := range d.Dimensions {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			md.Dimensions = append(md.Dimensions, cwtypes.Dimension{
				Name:  awsString(k),
				Value: awsString(d.Dimensions[k]),
			})
		}
		data = append(data, md)
	}

	for start := 0; start < len(data); start += maxDatumsPerCall {
		end := start + maxDatumsPerCall
		if end > len(data) {
			end = len(data)
		}
		_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  awsString(m.Namespace),
			MetricData: data[start:end],
		})
		if err != nil {
			return fmt.Errorf("put metric data: %w", err)
		}
	}
	return nil
}

func float64Ptr(v float64) *float64 { return &v }

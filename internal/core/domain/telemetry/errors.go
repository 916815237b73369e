package telemetry

import "cobalt/pkg/cobalterr"

var errInvalidKeyEncoding = cobalterr.NewInvalidArguments("malformed ReportAggregationKey encoding")

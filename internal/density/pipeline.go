package density

// Result is everything one aggregation pass produced.
type Result struct {
	Index          Index
	Classification Classification
	Compaction
	RecordsRead    int
	RecordsIndexed int
}

// Empty reports whether the pass had no input at all.
func (r Result) Empty() bool { return r.RecordsRead == 0 }

// Aggregate runs the indexing, suspicion and compaction stages over a
// snapshot of detection records. Empty input yields an empty Result.
func Aggregate(records []DetectionRecord, opts Options, nodes NodeDirectory) Result {
	res := Result{RecordsRead: len(records)}
	if len(records) == 0 {
		res.Index = Index{}
		return res
	}
	res.Index = BuildIndex(records, opts.Strength)
	res.RecordsIndexed = res.Index.Detections()
	res.Classification = Classify(res.Index, opts.Suspicion)
	res.Compaction = Compact(records, res.Index, res.Classification.Suspicious, nodes, opts.EstimationFactor)
	return res
}

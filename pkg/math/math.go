// Package math summarises the latencies of a baseline.
package math

import "sort"

// Maximum calculates the maximum value among two integers
func Maximum(a int64, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

//Minimum calculates the minimum value among two integers
func Minimum(a int64, b int64) int64 {
	if a > b {
		return b
	}
	return a
}

//Adjustment contains rule of three for calculating an integer given another integer representing a percentage
func Adjustment(a int, b int) int {
	return (a * b / 100)
}

// Percentile returns the nearest-rank p-th percentile of values, or 0 when
// values is empty. values is not modified.
func Percentile(values []int64, p int) int64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	p = int(Maximum(0, Minimum(100, int64(p))))
	rank := Adjustment(len(sorted), p)
	if len(sorted)*p%100 != 0 {
		rank++
	}
	if rank == 0 {
		rank = 1
	}
	return sorted[rank-1]
}

// Median is the 50th percentile
func Median(values []int64) int64 {
	return Percentile(values, 50)
}

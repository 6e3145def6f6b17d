// Package lesion holds the analysis-phase measurement state: operator-placed
// points along an extracted centerline, each carrying a derived vessel radius
// and arc-length parameter, plus the stenosis ratio between two points.
package lesion

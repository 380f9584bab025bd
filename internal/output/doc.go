// Package output serializes query results.
//
// Encode writes rows as JSON, CSV, YAML or TOML. Milkman implements
// engine.Deliverer and writes files for OUTPUT statements:
//
//	OUTPUT csv --filename links --filepath ./outputs --gzip;
//
// writes ./outputs/links.csv.gz. Rows are ordered by node ID so repeated
// runs over the same tree produce identical files.
package output

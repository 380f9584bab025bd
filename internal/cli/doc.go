// Package cli implements the goat command line tool.
//
//	goat query 'SCRAPE a; EXTRACT @href;' --url https://example.com
//	goat query 'SCRAPE h1; EXTRACT body;' --glob 'site/**/*.html' --format csv
//	goat compile 'SELECT 1 p IN div;'
//	goat tree --file page.html --scope main
//
// Documents come from --file, --url, --glob or stdin. Configuration is read
// from the same environment variables as the server.
package cli

// Package sqlstore implements the judge's persistence ports on top of sqlx.
// Queries are written once with ? placeholders and rebound for the driver;
// a Dialect supplies the schema, timestamp encoding and error mapping that
// differ between SQLite and PostgreSQL.
package sqlstore

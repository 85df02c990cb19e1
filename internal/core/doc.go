// Package core provides the business logic for supplier catalog imports.
//
// This package holds all domain logic independent of storage, dispatch and
// transport. Persistence, blob storage and the task queue are reached through
// the [Store], [BlobStore] and [TaskQueue] interfaces, so the same code runs
// against PostgreSQL, S3 and Redis in production and against in-memory
// implementations in tests.
//
// # Pipeline
//
//  1. [Service.CreateCatalog] detects the format from the filename, stores the
//     file under catalogs/{supplier_id}/{catalog_id}/{filename} and queues an
//     analyze job.
//  2. The analyze job parses the file and records its row count and the
//     advisory [Schema] of its first row.
//  3. An operator saves [FieldMapping] rules with [Service.SetFieldMappings]
//     and calls [Service.StartImport].
//  4. The import job re-parses the file, applies [ApplyMappings] to every row
//     and commits products in batches, recording skipped rows in the job's
//     error log.
//
// [Worker] runs queued jobs and [RetentionSweeper] deletes catalogs that are
// older than the retention window.
//
// # Row Values
//
// Rows are ordered [Record] maps of [Value], a tagged union of null, bool,
// int, float, string, object and array. Parsers keep column order and the
// JSON encoding of a Record preserves it.
//
// # Error Handling
//
// Job-fatal failures ([ParseError], [ConnectorError], [PersistenceError],
// [ErrEmptyFile]) fail both the job and its catalog with a single error log
// entry. A [RowError] only skips its row. Technical errors are mapped to
// user-facing messages with support codes by [MapError].
package core

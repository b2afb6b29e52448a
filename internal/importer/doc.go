// Package importer loads remote JSON datasets into Postgres. Each source
// (quran, hadith, ojk, swift_global, asmaul_husna) has an Importer that
// downloads its payload, decodes and validates it, and hands the resulting rows
// to a batch.Processor. Runner executes importers in order and summarises the
// run.
package importer

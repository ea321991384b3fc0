// Package queryir defines the closed syntax tree for the SQL subset seiql
// accepts.
//
// ARCHITECTURE:
//
//	[sqlparse] → [queryir] → [augment rewrites] → [querysql] → mirror SQL
//	                                           ↘ [engine] → contract calls
//
// Statement, Expr, and AlterAction are sealed interfaces using the marker
// method pattern. Only types in this package implement them, so every
// consumer can switch exhaustively over the variants:
//
//   - Statements: CreateTable, Insert, Select, Update, Delete, AlterTable, DropTable
//   - Expressions: Literal, ColumnRef, Binary, Unary, IsNull, FuncCall, Paren
//   - ALTER actions: AddColumn, DropColumn, RenameColumn, RenameTable
//
// Nodes are pointers and mutable. The augmenter rewrites a Clone of the
// parsed tree so the type-restored tree and the rewritten tree stay
// independent.
package queryir

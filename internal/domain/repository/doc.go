// Package repository define las entidades del subsistema SSO y las interfaces
// de acceso a datos. Las implementaciones viven en internal/store/pg (PostgreSQL)
// e internal/store/memory (tests y modo dev sin DB).
package repository

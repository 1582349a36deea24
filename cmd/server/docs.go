// Package main RoomSync API
//
//	@title			RoomSync API
//	@version		1.0
//	@description	Distributed room-state synchronization over a Redis-backed snapshot, history, and pub/sub layout
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	RoomSync
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@externalDocs.description	OpenAPI
//	@externalDocs.url			https://swagger.io/resources/open-api/
package main

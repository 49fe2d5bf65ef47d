package docs

// @title           Trip Tracking API
// @version         1.0
// @description     Coordinating server of the trip lifecycle: trip CRUD, offers to nearby fulfillers, fulfiller availability and the live tracking websocket channel.

// @contact.name   API Support

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

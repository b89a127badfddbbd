package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// LocalRequestID key del request id en c.Locals.
const LocalRequestID = "request_id"

// HeaderRequestID header de correlación que se acepta del cliente y se
// devuelve siempre en la respuesta.
const HeaderRequestID = "X-Request-ID"

// RequestIDMiddleware asigna un id de correlación a cada request: se respeta
// el que traiga el cliente y se genera uno nuevo si no viene. El id viaja en
// c.Locals para los handlers y vuelve en el header de la respuesta.
func RequestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid := c.Get(HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Locals(LocalRequestID, rid)
		c.Set(HeaderRequestID, rid)
		return c.Next()
	}
}

// GetRequestID devuelve el id de correlación del request actual.
func GetRequestID(c *fiber.Ctx) string {
	v := c.Locals(LocalRequestID)
	if v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

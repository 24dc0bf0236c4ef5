// devtoken emite un Bearer Token firmado con JWT_SECRET para probar la API en local.
//
// Uso: go run ./cmd/devtoken -user u-1 -business biz-1 -role clerk -locations loc-1,loc-2
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/pkg/config"
	"github.com/jhoicas/stock-ledger/pkg/jwt"
)

func main() {
	user := flag.String("user", "dev-user", "ID del usuario")
	name := flag.String("name", "", "nombre visible")
	business := flag.String("business", "dev-business", "ID del negocio")
	role := flag.String("role", entity.RoleAdmin, "admin | manager | clerk")
	locations := flag.String("locations", "", "ubicaciones asignadas, separadas por coma")
	minutes := flag.Int("minutes", 0, "vigencia en minutos (0 = JWT_EXPIRATION_MINUTES)")
	flag.Parse()

	switch *role {
	case entity.RoleAdmin, entity.RoleManager, entity.RoleClerk:
	default:
		fmt.Fprintf(os.Stderr, "rol desconocido %q\n", *role)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cargar configuración: %v\n", err)
		os.Exit(1)
	}
	if cfg.JWT.Secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET no está definido")
		os.Exit(1)
	}
	exp := cfg.JWT.Expiration
	if *minutes > 0 {
		exp = *minutes
	}

	var locs []string
	for _, l := range strings.Split(*locations, ",") {
		if l = strings.TrimSpace(l); l != "" {
			locs = append(locs, l)
		}
	}

	tok, err := jwt.Generate(cfg.JWT.Secret, jwt.Identity{
		UserID:      *user,
		BusinessID:  *business,
		DisplayName: *name,
		Role:        *role,
		Locations:   locs,
	}, cfg.JWT.Issuer, exp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Firmar token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}

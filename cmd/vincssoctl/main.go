// Command vincssoctl es el CLI admin del SSO: habla con /v1/admin usando
// la X-Admin-API-Key.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	BaseURL   string
	APIKey    string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	u := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, u, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("X-Admin-API-Key", c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

// run ejecuta la request y falla con contexto si el status no es 2xx.
func (c *client) run(method, path string, body []byte) error {
	status, respBody, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return fmt.Errorf("%s %s fallo: status=%d body=%s", method, path, status, string(respBody))
	}
	c.print(status, respBody)
	return nil
}

func main() {
	var (
		baseURL = envOr("VINCSSO_ADMIN_URL", "http://localhost:8080")
		apiKey  = envOr("VINCSSO_ADMIN_KEY", "")
		out     = envOr("VINCSSO_OUT", "text")
	)

	root := &cobra.Command{
		Use:   "vincssoctl",
		Short: "CLI admin para el SSO (solo /v1/admin)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if apiKey == "" {
				return fmt.Errorf("falta API key (flag --admin-api-key o env VINCSSO_ADMIN_KEY)")
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&baseURL, "admin-api-url", baseURL, "URL base del Admin API (env VINCSSO_ADMIN_URL)")
	root.PersistentFlags().StringVar(&apiKey, "admin-api-key", apiKey, "API key del Admin API (env VINCSSO_ADMIN_KEY)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")

	cl := &client{BaseURL: baseURL, APIKey: apiKey, OutFormat: out, HTTP: &http.Client{Timeout: 30 * time.Second}}

	// ─── sessions ───

	sessionsCmd := &cobra.Command{Use: "sessions", Short: "Sesiones de un tenant"}

	var lsTenant, lsUser, lsStatus, lsDevice string
	var lsPage, lsPageSize int
	sessionsListCmd := &cobra.Command{
		Use:   "list",
		Short: "Listar sesiones con filtros",
		RunE: func(cmd *cobra.Command, args []string) error {
			if lsTenant == "" {
				return fmt.Errorf("--tenant es requerido")
			}
			q := url.Values{}
			if lsUser != "" {
				q.Set("user_id", lsUser)
			}
			if lsStatus != "" {
				q.Set("status", lsStatus)
			}
			if lsDevice != "" {
				q.Set("device_type", lsDevice)
			}
			q.Set("page", fmt.Sprint(lsPage))
			q.Set("page_size", fmt.Sprint(lsPageSize))
			return cl.run("GET", "/v1/admin/tenants/"+lsTenant+"/sessions?"+q.Encode(), nil)
		},
	}
	sessionsListCmd.Flags().StringVar(&lsTenant, "tenant", "", "Tenant (requerido)")
	sessionsListCmd.Flags().StringVar(&lsUser, "user", "", "Filtrar por user ID")
	sessionsListCmd.Flags().StringVar(&lsStatus, "status", "", "Filtrar por estado: active|expired|revoked")
	sessionsListCmd.Flags().StringVar(&lsDevice, "device", "", "Filtrar por tipo de dispositivo")
	sessionsListCmd.Flags().IntVar(&lsPage, "page", 1, "Página")
	sessionsListCmd.Flags().IntVar(&lsPageSize, "page-size", 20, "Tamaño de página")

	var statsTenant string
	sessionsStatsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Estadísticas de sesiones activas",
		RunE: func(cmd *cobra.Command, args []string) error {
			if statsTenant == "" {
				return fmt.Errorf("--tenant es requerido")
			}
			return cl.run("GET", "/v1/admin/tenants/"+statsTenant+"/sessions/stats", nil)
		},
	}
	sessionsStatsCmd.Flags().StringVar(&statsTenant, "tenant", "", "Tenant (requerido)")

	var rvTenant, rvSID string
	sessionsRevokeCmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revocar una sesión por su session ID (hash)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rvTenant == "" || rvSID == "" {
				return fmt.Errorf("--tenant y --sid son requeridos")
			}
			return cl.run("DELETE", "/v1/admin/tenants/"+rvTenant+"/sessions/"+url.PathEscape(rvSID), nil)
		},
	}
	sessionsRevokeCmd.Flags().StringVar(&rvTenant, "tenant", "", "Tenant (requerido)")
	sessionsRevokeCmd.Flags().StringVar(&rvSID, "sid", "", "Session ID (requerido)")

	var rvaTenant, rvaUser string
	sessionsRevokeAllCmd := &cobra.Command{
		Use:   "revoke-all",
		Short: "Revocar todas las sesiones activas de un usuario",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rvaTenant == "" || rvaUser == "" {
				return fmt.Errorf("--tenant y --user son requeridos")
			}
			return cl.run("POST", "/v1/admin/tenants/"+rvaTenant+"/users/"+url.PathEscape(rvaUser)+"/revoke-all", nil)
		},
	}
	sessionsRevokeAllCmd.Flags().StringVar(&rvaTenant, "tenant", "", "Tenant (requerido)")
	sessionsRevokeAllCmd.Flags().StringVar(&rvaUser, "user", "", "User ID (requerido)")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsStatsCmd, sessionsRevokeCmd, sessionsRevokeAllCmd)

	// ─── ipblocks ───

	ipblocksCmd := &cobra.Command{Use: "ipblocks", Short: "Registro de IPs bloqueadas"}

	var ibActiveOnly bool
	ipblocksListCmd := &cobra.Command{
		Use:   "list",
		Short: "Listar bloqueos",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/admin/ipblocks"
			if !ibActiveOnly {
				path += "?active=false"
			}
			return cl.run("GET", path, nil)
		},
	}
	ipblocksListCmd.Flags().BoolVar(&ibActiveOnly, "active-only", true, "Solo bloqueos vigentes")

	var blkIP, blkTenant, blkReason, blkDesc string
	var blkMinutes int
	ipblocksBlockCmd := &cobra.Command{
		Use:   "block",
		Short: "Bloquear una IP (global o por tenant)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if blkIP == "" {
				return fmt.Errorf("--ip es requerido")
			}
			payload := map[string]any{
				"ip_address":  blkIP,
				"tenant_id":   blkTenant,
				"reason":      blkReason,
				"description": blkDesc,
			}
			if blkMinutes > 0 {
				payload["expires_minutes"] = blkMinutes
			}
			b, _ := json.Marshal(payload)
			return cl.run("POST", "/v1/admin/ipblocks", b)
		},
	}
	ipblocksBlockCmd.Flags().StringVar(&blkIP, "ip", "", "IP a bloquear (requerido)")
	ipblocksBlockCmd.Flags().StringVar(&blkTenant, "tenant", "", "Tenant (vacío = bloqueo global)")
	ipblocksBlockCmd.Flags().StringVar(&blkReason, "reason", "manual", "Motivo: manual|brute_force|suspicious")
	ipblocksBlockCmd.Flags().StringVar(&blkDesc, "description", "", "Descripción libre")
	ipblocksBlockCmd.Flags().IntVar(&blkMinutes, "expires-minutes", 0, "Expiración en minutos (0 = permanente)")

	var unbIP, unbTenant string
	ipblocksUnblockCmd := &cobra.Command{
		Use:   "unblock",
		Short: "Levantar el bloqueo de una IP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if unbIP == "" {
				return fmt.Errorf("--ip es requerido")
			}
			q := url.Values{"ip": {unbIP}}
			if unbTenant != "" {
				q.Set("tenant_id", unbTenant)
			}
			return cl.run("DELETE", "/v1/admin/ipblocks?"+q.Encode(), nil)
		},
	}
	ipblocksUnblockCmd.Flags().StringVar(&unbIP, "ip", "", "IP a desbloquear (requerido)")
	ipblocksUnblockCmd.Flags().StringVar(&unbTenant, "tenant", "", "Tenant del bloqueo (vacío = global)")

	ipblocksCmd.AddCommand(ipblocksListCmd, ipblocksBlockCmd, ipblocksUnblockCmd)

	// ─── policy ───

	policyCmd := &cobra.Command{Use: "policy", Short: "Política de seguridad por tenant"}

	var polGetTenant string
	policyGetCmd := &cobra.Command{
		Use:   "get",
		Short: "Ver la política efectiva del tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if polGetTenant == "" {
				return fmt.Errorf("--tenant es requerido")
			}
			return cl.run("GET", "/v1/admin/tenants/"+polGetTenant+"/security-policy", nil)
		},
	}
	policyGetCmd.Flags().StringVar(&polGetTenant, "tenant", "", "Tenant (requerido)")

	var polSetTenant string
	var polMaxAttempts, polSessionHours, polMaxSessions, polLockoutMin int
	var polProgressive string
	policySetCmd := &cobra.Command{
		Use:   "set",
		Short: "Actualizar campos de la política (solo los flags presentes)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if polSetTenant == "" {
				return fmt.Errorf("--tenant es requerido")
			}
			payload := map[string]any{}
			if cmd.Flags().Changed("max-login-attempts") {
				payload["max_login_attempts"] = polMaxAttempts
			}
			if cmd.Flags().Changed("session-hours") {
				payload["session_timeout_hours"] = polSessionHours
			}
			if cmd.Flags().Changed("max-sessions") {
				payload["max_sessions_per_user"] = polMaxSessions
			}
			if cmd.Flags().Changed("lockout-minutes") {
				payload["lockout_minutes"] = polLockoutMin
			}
			if cmd.Flags().Changed("progressive-delay") {
				payload["enable_progressive_delay"] = polProgressive == "true"
			}
			if len(payload) == 0 {
				return fmt.Errorf("nada que actualizar: pasá al menos un flag de política")
			}
			b, _ := json.Marshal(payload)
			return cl.run("PUT", "/v1/admin/tenants/"+polSetTenant+"/security-policy", b)
		},
	}
	policySetCmd.Flags().StringVar(&polSetTenant, "tenant", "", "Tenant (requerido)")
	policySetCmd.Flags().IntVar(&polMaxAttempts, "max-login-attempts", 0, "Fallos antes del lockout")
	policySetCmd.Flags().IntVar(&polSessionHours, "session-hours", 0, "Duración de sesión en horas")
	policySetCmd.Flags().IntVar(&polMaxSessions, "max-sessions", 0, "Sesiones concurrentes por usuario")
	policySetCmd.Flags().IntVar(&polLockoutMin, "lockout-minutes", 0, "Duración del lockout en minutos")
	policySetCmd.Flags().StringVar(&polProgressive, "progressive-delay", "", "Delay progresivo: true|false")

	policyCmd.AddCommand(policyGetCmd, policySetCmd)

	// ─── clients ───

	clientsCmd := &cobra.Command{Use: "clients", Short: "Clientes OAuth2 por tenant"}

	var clListTenant string
	clientsListCmd := &cobra.Command{
		Use:   "list",
		Short: "Listar clientes del tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clListTenant == "" {
				return fmt.Errorf("--tenant es requerido")
			}
			return cl.run("GET", "/v1/admin/tenants/"+clListTenant+"/clients", nil)
		},
	}
	clientsListCmd.Flags().StringVar(&clListTenant, "tenant", "", "Tenant (requerido)")

	var regTenant, regClientID, regName, regApp string
	var regRedirects, regOrigins []string
	var regFirstParty bool
	clientsRegisterCmd := &cobra.Command{
		Use:   "register",
		Short: "Registrar un cliente OAuth2 (el secret sale una sola vez)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if regTenant == "" || regClientID == "" {
				return fmt.Errorf("--tenant y --client-id son requeridos")
			}
			if len(regRedirects) == 0 {
				return fmt.Errorf("--redirect-uri es requerido (repetible)")
			}
			payload := map[string]any{
				"client_id":       regClientID,
				"name":            regName,
				"app":             regApp,
				"redirect_uris":   regRedirects,
				"allowed_origins": regOrigins,
				"first_party":     regFirstParty,
			}
			b, _ := json.Marshal(payload)
			return cl.run("POST", "/v1/admin/tenants/"+regTenant+"/clients", b)
		},
	}
	clientsRegisterCmd.Flags().StringVar(&regTenant, "tenant", "", "Tenant (requerido)")
	clientsRegisterCmd.Flags().StringVar(&regClientID, "client-id", "", "Client ID (requerido)")
	clientsRegisterCmd.Flags().StringVar(&regName, "name", "", "Nombre del cliente")
	clientsRegisterCmd.Flags().StringVar(&regApp, "app", "", "Aplicación destino (AppStorefront|AppBackoffice|AppPartner)")
	clientsRegisterCmd.Flags().StringArrayVar(&regRedirects, "redirect-uri", nil, "Redirect URI permitida (repetible)")
	clientsRegisterCmd.Flags().StringArrayVar(&regOrigins, "origin", nil, "Origen CORS permitido (repetible)")
	clientsRegisterCmd.Flags().BoolVar(&regFirstParty, "first-party", false, "Cliente first-party (PKCE no obligatorio)")

	clientsCmd.AddCommand(clientsListCmd, clientsRegisterCmd)

	root.AddCommand(sessionsCmd, ipblocksCmd, policyCmd, clientsCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

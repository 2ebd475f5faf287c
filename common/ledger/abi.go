package ledger

// Contract method names. These are the deployed contract's external interface.
const (
	methodGetClaim      = "obtenerReclamo"
	methodAdministrator = "administradores"
	methodOwner         = "propietario"
	methodBalance       = "obtenerBalance"
	methodRegister      = "registrarReclamo"
	methodValidate      = "validarReclamo"
	methodApprove       = "aprobarReclamo"
	methodReject        = "rechazarReclamo"
	methodPay           = "procesarPago"
	methodPayPublic     = "pagarReclamoPublico"
	methodAddAdmin      = "agregarAdministrador"
	methodRemoveAdmin   = "removerAdministrador"
)

// contractABI is the subset of the claims contract used by the gateway
const contractABI = `[
  {"type":"function","name":"obtenerReclamo","stateMutability":"view",
   "inputs":[{"name":"_siniestroId","type":"uint256"}],
   "outputs":[
     {"name":"siniestroId","type":"uint256"},
     {"name":"solicitante","type":"address"},
     {"name":"descripcion","type":"string"},
     {"name":"monto","type":"uint256"},
     {"name":"estado","type":"uint8"},
     {"name":"fechaCreacion","type":"uint256"},
     {"name":"fechaActualizacion","type":"uint256"},
     {"name":"validadoPor","type":"address"},
     {"name":"procesadoPor","type":"address"},
     {"name":"notasAdmin","type":"string"}
   ]},
  {"type":"function","name":"administradores","stateMutability":"view",
   "inputs":[{"name":"","type":"address"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"propietario","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"obtenerBalance","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"registrarReclamo","stateMutability":"nonpayable",
   "inputs":[
     {"name":"_siniestroId","type":"uint256"},
     {"name":"_descripcion","type":"string"},
     {"name":"_monto","type":"uint256"}
   ],
   "outputs":[]},
  {"type":"function","name":"validarReclamo","stateMutability":"nonpayable",
   "inputs":[{"name":"_siniestroId","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"aprobarReclamo","stateMutability":"nonpayable",
   "inputs":[{"name":"_siniestroId","type":"uint256"},{"name":"_notas","type":"string"}],
   "outputs":[]},
  {"type":"function","name":"rechazarReclamo","stateMutability":"nonpayable",
   "inputs":[{"name":"_siniestroId","type":"uint256"},{"name":"_razon","type":"string"}],
   "outputs":[]},
  {"type":"function","name":"procesarPago","stateMutability":"payable",
   "inputs":[{"name":"_siniestroId","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"pagarReclamoPublico","stateMutability":"payable",
   "inputs":[{"name":"_siniestroId","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"agregarAdministrador","stateMutability":"nonpayable",
   "inputs":[{"name":"_admin","type":"address"}],
   "outputs":[]},
  {"type":"function","name":"removerAdministrador","stateMutability":"nonpayable",
   "inputs":[{"name":"_admin","type":"address"}],
   "outputs":[]}
]`
